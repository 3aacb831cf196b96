package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// keywordsFile is the on-disk shape of a negative-keyword override list.
type keywordsFile struct {
	NegativeKeywords []string `yaml:"negative_keywords"`
}

// LoadNegativeKeywords reads an optional YAML file with a negative_keywords
// list. An empty path returns (nil, nil) so callers fall back to the built-in
// defaults.
func LoadNegativeKeywords(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read negative keywords file: %w", err)
	}
	var kf keywordsFile
	if err := yaml.Unmarshal(b, &kf); err != nil {
		return nil, fmt.Errorf("parse negative keywords file: %w", err)
	}
	return kf.NegativeKeywords, nil
}
