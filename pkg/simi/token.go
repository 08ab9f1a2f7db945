package simi

import "strings"

// Sentinel tokens of the lineage format. These match the source tool's
// literal output and are not configurable.
const (
	cellMarker    = "CELL="
	commentMarker = "COMMENT="
	colorMarker   = "COLOR="
)

// scanState tracks where the tokenizer is inside a cell block. The format
// reuses the CELL= line shape both to declare a cell and to reference its
// parent, disambiguated only by position: a CELL= line directly after a
// header is the parent, anywhere else it opens a new block. The state makes
// that positional rule an explicit transition instead of a line-count
// assumption.
type scanState int

const (
	expectingHeader scanState = iota
	expectingParentOrSpot
	expectingSpot
)

// rawBlock is one tokenized cell block: the declaring header line, the
// positionally designated parent reference when present, and the remaining
// payload lines in file order.
type rawBlock struct {
	name       string
	line       int
	parentName string
	body       []rawLine
}

type rawLine struct {
	text string
	num  int
}

// tokenize splits raw lineage file content into an ordered sequence of cell
// blocks in a single left-to-right scan. Content before the first header is
// file preamble and is skipped. Blank lines never advance the state, so a
// blank line between a header and its parent reference does not consume the
// parent slot.
func tokenize(data []byte) []rawBlock {
	var blocks []rawBlock
	state := expectingHeader
	for i, raw := range strings.Split(string(data), "\n") {
		num := i + 1
		text := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if text == "" {
			continue
		}
		header := strings.HasPrefix(text, cellMarker)
		switch state {
		case expectingHeader:
			if !header {
				continue
			}
			blocks = append(blocks, rawBlock{name: headerPayload(text), line: num})
			state = expectingParentOrSpot
		case expectingParentOrSpot:
			current := &blocks[len(blocks)-1]
			if header {
				current.parentName = headerPayload(text)
			} else {
				current.body = append(current.body, rawLine{text: text, num: num})
			}
			state = expectingSpot
		case expectingSpot:
			if header {
				blocks = append(blocks, rawBlock{name: headerPayload(text), line: num})
				state = expectingParentOrSpot
				continue
			}
			current := &blocks[len(blocks)-1]
			current.body = append(current.body, rawLine{text: text, num: num})
		}
	}
	return blocks
}

func headerPayload(text string) string {
	return strings.TrimSpace(text[len(cellMarker):])
}
