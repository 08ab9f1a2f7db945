package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"lineagecore/pkg/domain"
)

// BuildMatrix renders a project as a flat CSV with one row per valid cell,
// in stored order. Spotless cells carry no timeline and are omitted.
func BuildMatrix(project domain.Project) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"name", "parent", "birth_frame", "last_frame", "spots", "children", "comment", "color"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write matrix header: %w", err)
	}
	for _, cell := range project.Cells {
		if !cell.Valid() {
			continue
		}
		row := []string{
			cell.Name,
			cell.ParentName,
			strconv.Itoa(cell.Spots[0].Frame),
			strconv.Itoa(lastFrame(cell.Spots)),
			strconv.Itoa(len(cell.Spots)),
			strconv.Itoa(len(cell.Children)),
			cell.Comment,
			cell.Color,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write matrix row for %s: %w", cell.Name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush matrix: %w", err)
	}
	return buf.Bytes(), nil
}

// lastFrame returns the highest frame across the spots. Spot frames usually
// ascend but regressions survive parsing, so it scans rather than indexing
// the final sample.
func lastFrame(spots []domain.Spot) int {
	last := 0
	for _, spot := range spots {
		if spot.Frame > last {
			last = spot.Frame
		}
	}
	return last
}
