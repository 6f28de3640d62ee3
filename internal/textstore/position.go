package textstore

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// LineIndex converts between byte offsets and LSP positions (zero-based line,
// UTF-16 code unit column) for one text.
type LineIndex struct {
	text   string
	starts []int
}

func NewLineIndex(text string) *LineIndex {
	starts := make([]int, 1, strings.Count(text, "\n")+1)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, starts: starts}
}

// Lines is the number of lines, counting the one after a trailing newline.
func (li *LineIndex) Lines() int { return len(li.starts) }

func (li *LineIndex) lineEnd(line int) int {
	end := len(li.text)
	if line+1 < len(li.starts) {
		end = li.starts[line+1] - 1
	}
	if end > li.starts[line] && li.text[end-1] == '\r' {
		end--
	}
	return end
}

// Offset returns the byte offset of pos. Columns past the end of a line clamp
// to the line end; lines past the end of the text are an error, except the
// position right after the last line.
func (li *LineIndex) Offset(pos protocol.Position) (int, error) {
	line := int(pos.Line)
	if line >= len(li.starts) {
		if line == len(li.starts) && pos.Character == 0 {
			return len(li.text), nil
		}
		return 0, fmt.Errorf("line %d out of range (%d lines)", pos.Line, len(li.starts))
	}
	at, end := li.starts[line], li.lineEnd(line)
	units := uint32(0)
	for at < end {
		r, size := utf8.DecodeRuneInString(li.text[at:end])
		n := uint32(1)
		if r > 0xFFFF {
			n = 2
		}
		if units+n > pos.Character {
			break
		}
		units += n
		at += size
	}
	return at, nil
}

// Position returns the LSP position of a byte offset.
func (li *LineIndex) Position(offset int) protocol.Position {
	if offset > len(li.text) {
		offset = len(li.text)
	}
	if offset < 0 {
		offset = 0
	}
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	var units uint32
	for _, r := range li.text[li.starts[line]:offset] {
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return protocol.Position{Line: uint32(line), Character: units}
}

func (li *LineIndex) Range(start, end int) protocol.Range {
	return protocol.Range{Start: li.Position(start), End: li.Position(end)}
}
