package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"leadengine/internal/platform/store"
)

// Format selects an export serialization.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatXLSX:
		return Format(s), nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

func (f Format) Extension() string { return string(f) }

// columns is the stable export order for tabular formats.
var columns = []string{
	"name", "category", "address", "phone", "rating", "review_count", "photo_count",
	"website", "maps_url", "business_status", "has_hours", "distance_km",
	"distance_miles", "lead_score",
}

// Write serializes the lead set in the requested format. It works on whatever
// leads exist at call time, including partial results of a failed or
// cancelled run.
func Write(w io.Writer, format Format, leads []store.Lead) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, leads)
	case FormatXLSX:
		return writeXLSX(w, leads)
	default:
		return writeCSV(w, leads)
	}
}

func row(l store.Lead) []string {
	return []string{
		l.Name,
		l.Category,
		l.Address,
		l.Phone,
		strconv.FormatFloat(l.Rating, 'f', -1, 64),
		strconv.Itoa(l.ReviewCount),
		strconv.Itoa(l.PhotoCount),
		l.Website,
		l.MapsURL,
		l.BusinessStatus,
		strconv.FormatBool(l.HasHours),
		strconv.FormatFloat(l.DistanceKm, 'f', 2, 64),
		strconv.FormatFloat(l.DistanceMiles, 'f', 2, 64),
		strconv.Itoa(l.LeadScore),
	}
}

func writeCSV(w io.Writer, leads []store.Lead) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, l := range leads {
		if err := cw.Write(row(l)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, leads []store.Lead) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(leads)
}

func writeXLSX(w io.Writer, leads []store.Lead) error {
	f := excelize.NewFile()
	const sheet = "Leads"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for r, l := range leads {
		values := []interface{}{
			l.Name, l.Category, l.Address, l.Phone, l.Rating, l.ReviewCount,
			l.PhotoCount, l.Website, l.MapsURL, l.BusinessStatus, l.HasHours,
			l.DistanceKm, l.DistanceMiles, l.LeadScore,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}
