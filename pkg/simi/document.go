package simi

import (
	"fmt"
	"iter"
)

// NotFoundError is returned when a cell name is absent from a document.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("cell %q not found", e.Name)
}

// Document owns the assembled lineage tree: the name-keyed cell mapping in
// first-appearance order, the resolved parent/child relation and the
// diagnostics collected while parsing. A Document is read-only after
// ParseDocument returns; independent documents share nothing and may be used
// concurrently.
type Document struct {
	cells     []*Cell
	index     map[string]*Cell
	parents   map[string]string
	roots     []string
	diags     []Diagnostic
	lastFrame int
}

// ParseDocument parses raw lineage file content and assembles the tree.
//
// Cells are inserted in encounter order; on a duplicate name the first
// occurrence wins and the later block is dropped whole, spots included.
// Parent references are then resolved against the complete mapping: a name
// that resolves registers the cell as a child of its parent, a name that
// does not leaves the cell as an additional root. Because resolution runs
// strictly after all cells are known, a reference chain that would close a
// cycle collapses to one side staying unresolved instead of looping.
func ParseDocument(data []byte) *Document {
	doc := &Document{
		index:   make(map[string]*Cell),
		parents: make(map[string]string),
	}
	for _, block := range tokenize(data) {
		cell := buildCell(block, &doc.diags)
		if first, exists := doc.index[cell.Name]; exists {
			doc.diags = append(doc.diags, Diagnostic{
				Code:     DiagDuplicateName,
				Severity: SeverityWarn,
				Line:     cell.line,
				Cell:     cell.Name,
				Message:  fmt.Sprintf("cell %q already declared at line %d, keeping first occurrence", cell.Name, first.line),
			})
			continue
		}
		doc.index[cell.Name] = cell
		doc.cells = append(doc.cells, cell)
	}
	doc.resolve()
	for _, cell := range doc.cells {
		if cell.Valid() && cell.LastFrame() > doc.lastFrame {
			doc.lastFrame = cell.LastFrame()
		}
	}
	return doc
}

// resolve links each cell to its declared parent where possible and derives
// the child lists and the root set.
func (d *Document) resolve() {
	for _, cell := range d.cells {
		if cell.ParentName == "" {
			continue
		}
		parent, ok := d.index[cell.ParentName]
		if !ok {
			d.diags = append(d.diags, Diagnostic{
				Code:     DiagUnresolvedParent,
				Severity: SeverityLog,
				Line:     cell.line,
				Cell:     cell.Name,
				Message:  fmt.Sprintf("parent %q not found, treating %q as root", cell.ParentName, cell.Name),
			})
			continue
		}
		if d.closesCycle(cell.Name, parent.Name) {
			d.diags = append(d.diags, Diagnostic{
				Code:     DiagUnresolvedParent,
				Severity: SeverityLog,
				Line:     cell.line,
				Cell:     cell.Name,
				Message:  fmt.Sprintf("parent %q closes a lineage cycle, treating %q as root", cell.ParentName, cell.Name),
			})
			continue
		}
		d.parents[cell.Name] = parent.Name
		parent.children = append(parent.children, cell.Name)
	}
	for _, cell := range d.cells {
		if _, linked := d.parents[cell.Name]; !linked {
			d.roots = append(d.roots, cell.Name)
		}
	}
}

// closesCycle walks the already-resolved ancestor chain of the candidate
// parent and reports whether it reaches the child. Linking in that case
// would turn the chain into a loop, so the child stays a root instead.
func (d *Document) closesCycle(child, parent string) bool {
	for name := parent; name != ""; name = d.parents[name] {
		if name == child {
			return true
		}
	}
	return false
}

// Cell looks up a cell by name.
func (d *Document) Cell(name string) (*Cell, error) {
	cell, ok := d.index[name]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return cell, nil
}

// Cells returns all cells in first-appearance order.
func (d *Document) Cells() []*Cell {
	out := make([]*Cell, len(d.cells))
	copy(out, d.cells)
	return out
}

// Roots returns the cells with no resolved parent, in first-appearance
// order. This covers cells with an empty parent name and cells whose
// declared parent never resolved.
func (d *Document) Roots() []*Cell {
	out := make([]*Cell, 0, len(d.roots))
	for _, name := range d.roots {
		out = append(out, d.index[name])
	}
	return out
}

// Parent returns the resolved parent of the named cell. Roots and unknown
// names report false.
func (d *Document) Parent(name string) (*Cell, bool) {
	parent, ok := d.parents[name]
	if !ok {
		return nil, false
	}
	return d.index[parent], true
}

// ValidCells returns the cells carrying spots, in first-appearance order.
func (d *Document) ValidCells() []*Cell {
	out := make([]*Cell, 0, len(d.cells))
	for _, cell := range d.cells {
		if cell.Valid() {
			out = append(out, cell)
		}
	}
	return out
}

// InvalidCells returns the cells without spots, in first-appearance order.
func (d *Document) InvalidCells() []*Cell {
	var out []*Cell
	for _, cell := range d.cells {
		if !cell.Valid() {
			out = append(out, cell)
		}
	}
	return out
}

// LastFrame returns the highest frame of any valid cell's spots, or zero
// for a document without spots.
func (d *Document) LastFrame() int {
	return d.lastFrame
}

// Diagnostics returns the conditions recovered while parsing, in the order
// they were found.
func (d *Document) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(d.diags))
	copy(out, d.diags)
	return out
}

// DepthFirst returns a lazy preorder walk of the subtree rooted at the
// named cell. The sequence is finite, restartable and safe to abandon
// early; children are visited in document order.
func (d *Document) DepthFirst(name string) (iter.Seq[*Cell], error) {
	start, ok := d.index[name]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return func(yield func(*Cell) bool) {
		stack := []*Cell{start}
		for len(stack) > 0 {
			cell := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !yield(cell) {
				return
			}
			for i := len(cell.children) - 1; i >= 0; i-- {
				stack = append(stack, d.index[cell.children[i]])
			}
		}
	}, nil
}

// BreadthFirst returns a lazy level-order walk of the subtree rooted at the
// named cell, with the same sequence guarantees as DepthFirst.
func (d *Document) BreadthFirst(name string) (iter.Seq[*Cell], error) {
	start, ok := d.index[name]
	if !ok {
		return nil, NotFoundError{Name: name}
	}
	return func(yield func(*Cell) bool) {
		queue := []*Cell{start}
		for len(queue) > 0 {
			cell := queue[0]
			queue = queue[1:]
			if !yield(cell) {
				return
			}
			for _, child := range cell.children {
				queue = append(queue, d.index[child])
			}
		}
	}, nil
}

// Descendants returns every cell below the named cell in depth-first
// preorder, excluding the cell itself.
func (d *Document) Descendants(name string) ([]*Cell, error) {
	walk, err := d.DepthFirst(name)
	if err != nil {
		return nil, err
	}
	var out []*Cell
	for cell := range walk {
		if cell.Name == name {
			continue
		}
		out = append(out, cell)
	}
	return out, nil
}
