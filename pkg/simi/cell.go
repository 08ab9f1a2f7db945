package simi

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Spot is one position sample of a cell at one timepoint. Coordinates are
// integer-valued in the source format but held as float64 because downstream
// consumers scale them by the recording calibration.
type Spot struct {
	Frame int
	X     float64
	Y     float64
	Z     float64
}

// Cell is one tracked lineage node. ParentName is a name reference into the
// owning document, never a pointer; it stays as written in the file even
// when it does not resolve. Spots keep exact file order. The derived child
// list is computed once during assembly and immutable afterwards.
type Cell struct {
	Name       string
	ParentName string
	Comment    string
	Color      string
	Spots      []Spot

	children []string
	line     int
}

// buildCell converts one tokenized block into a Cell. Metadata lines set the
// matching field; every other payload line must parse as a spot record or it
// is skipped with a diagnostic, leaving the rest of the block intact.
func buildCell(block rawBlock, diags *[]Diagnostic) *Cell {
	cell := &Cell{Name: block.name, ParentName: block.parentName, line: block.line}
	for _, ln := range block.body {
		switch {
		case strings.HasPrefix(ln.text, commentMarker):
			cell.Comment = strings.TrimSpace(ln.text[len(commentMarker):])
		case strings.HasPrefix(ln.text, colorMarker):
			cell.Color = strings.TrimSpace(ln.text[len(colorMarker):])
		default:
			spot, err := parseSpot(ln.text)
			if err != nil {
				*diags = append(*diags, Diagnostic{
					Code:     DiagMalformedRecord,
					Severity: SeverityWarn,
					Line:     ln.num,
					Cell:     cell.Name,
					Message:  err.Error(),
				})
				continue
			}
			cell.Spots = append(cell.Spots, spot)
		}
	}
	return cell
}

// parseSpot parses one spot record: four whitespace-separated fields read
// positionally as frame, x, y, z. No re-sorting by frame happens anywhere;
// the format is expected to be chronological already and reordering would
// mask data errors.
func parseSpot(text string) (Spot, error) {
	fields := strings.Fields(text)
	if len(fields) != 4 {
		return Spot{}, fmt.Errorf("spot record has %d fields, expected 4", len(fields))
	}
	frame, err := strconv.Atoi(fields[0])
	if err != nil {
		return Spot{}, fmt.Errorf("spot frame %q is not an integer", fields[0])
	}
	if frame < 0 {
		return Spot{}, fmt.Errorf("spot frame %d is negative", frame)
	}
	var coords [3]float64
	for i, field := range fields[1:] {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Spot{}, fmt.Errorf("spot coordinate %q is not numeric", field)
		}
		coords[i] = value
	}
	return Spot{Frame: frame, X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

// Valid reports whether the cell carries at least one spot. Cells without
// spots exist in edited files as structural placeholders and are excluded
// from frame ranges and exports.
func (c *Cell) Valid() bool {
	return len(c.Spots) > 0
}

// BirthFrame returns the frame of the first spot, or zero for a cell
// without spots.
func (c *Cell) BirthFrame() int {
	if len(c.Spots) == 0 {
		return 0
	}
	return c.Spots[0].Frame
}

// LastFrame returns the highest frame across the cell's spots, or zero for
// a cell without spots.
func (c *Cell) LastFrame() int {
	last := 0
	for _, spot := range c.Spots {
		if spot.Frame > last {
			last = spot.Frame
		}
	}
	return last
}

// Children returns the names of the cell's resolved children in document
// order.
func (c *Cell) Children() []string {
	out := make([]string, len(c.children))
	copy(out, c.children)
	return out
}

// Line returns the 1-based line number of the cell's declaration in the
// lineage file.
func (c *Cell) Line() int {
	return c.line
}

// InterpolatedSpots returns the spot sequence with every missing frame
// between consecutive samples filled by linear interpolation. Only strictly
// ascending gaps are filled; a sample whose frame does not advance is passed
// through untouched.
func (c *Cell) InterpolatedSpots() []Spot {
	if len(c.Spots) == 0 {
		return nil
	}
	out := make([]Spot, 0, len(c.Spots))
	out = append(out, c.Spots[0])
	for i := 1; i < len(c.Spots); i++ {
		prev, next := c.Spots[i-1], c.Spots[i]
		gap := next.Frame - prev.Frame
		for f := prev.Frame + 1; f < next.Frame; f++ {
			t := float64(f-prev.Frame) / float64(gap)
			out = append(out, Spot{
				Frame: f,
				X:     prev.X + (next.X-prev.X)*t,
				Y:     prev.Y + (next.Y-prev.Y)*t,
				Z:     prev.Z + (next.Z-prev.Z)*t,
			})
		}
		out = append(out, next)
	}
	return out
}

// WriteSummary writes a human-readable dump of the cell: identity, frame
// range and the spot table.
func (c *Cell) WriteSummary(w io.Writer) error {
	parent := c.ParentName
	if parent == "" {
		parent = "-"
	}
	if _, err := fmt.Fprintf(w, "Name: %s\nParent: %s\nFrames: %d-%d\nSpots: %d\n", c.Name, parent, c.BirthFrame(), c.LastFrame(), len(c.Spots)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "\tframe\tx\ty\tz"); err != nil {
		return err
	}
	for _, spot := range c.Spots {
		if _, err := fmt.Fprintf(w, "\t%d\t%g\t%g\t%g\n", spot.Frame, spot.X, spot.Y, spot.Z); err != nil {
			return err
		}
	}
	return nil
}
