package worker

import (
	"context"

	"github.com/hibiken/asynq"
)

// Mux routes queued extraction tasks to their handlers. There is one task
// type today; the wrapper keeps asynq's registration surface out of main.
type Mux struct{ mux *asynq.ServeMux }

func NewMux() *Mux { return &Mux{mux: asynq.NewServeMux()} }

// HandleFunc binds a task type to the handler that drives its run.
func (m *Mux) HandleFunc(taskType string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(taskType, h)
}

// ServeMux exposes the underlying mux for the asynq server to consume.
func (m *Mux) ServeMux() *asynq.ServeMux { return m.mux }
