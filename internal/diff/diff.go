// Package diff renders line-level unified diffs between two renderings of
// a prompt.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is one line of a line-level diff. OldNum and NewNum are 1-based and
// zero when the line does not exist on that side.
type Line struct {
	Type    LineType
	Content string
	OldNum  int
	NewNum  int
}

// Hunk is a run of changed lines with surrounding context.
type Hunk struct {
	OldStart, OldCount int
	NewStart, NewCount int
	Lines              []Line
}

// Lines computes the line-level diff of old and new.
func Lines(old, new string) []Line {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	a, b, lineArray := dmp.DiffLinesToChars(old, new)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	var out []Line
	oldNum, newNum := 0, 0
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldNum++
				newNum++
				out = append(out, Line{Type: LineContext, Content: text, OldNum: oldNum, NewNum: newNum})
			case diffmatchpatch.DiffDelete:
				oldNum++
				out = append(out, Line{Type: LineRemoved, Content: text, OldNum: oldNum})
			case diffmatchpatch.DiffInsert:
				newNum++
				out = append(out, Line{Type: LineAdded, Content: text, NewNum: newNum})
			}
		}
	}
	return out
}

// Hunks groups changed lines with up to context lines of surrounding
// context. Hunks whose context would overlap are merged.
func Hunks(lines []Line, context int) []Hunk {
	keep := make([]bool, len(lines))
	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		for j := max(0, i-context); j <= min(len(lines)-1, i+context); j++ {
			keep[j] = true
		}
	}

	var hunks []Hunk
	var cur *Hunk
	oldNext, newNext := 1, 1
	for i, l := range lines {
		if !keep[i] {
			if cur != nil {
				hunks = append(hunks, *cur)
				cur = nil
			}
		} else {
			if cur == nil {
				cur = &Hunk{OldStart: oldNext, NewStart: newNext}
			}
			cur.Lines = append(cur.Lines, l)
			if l.Type != LineAdded {
				cur.OldCount++
			}
			if l.Type != LineRemoved {
				cur.NewCount++
			}
		}
		if l.Type != LineAdded {
			oldNext++
		}
		if l.Type != LineRemoved {
			newNext++
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks
}

// Unified renders a unified diff of old and new with three lines of
// context. It returns "" when the texts are equal.
func Unified(oldName, newName, old, new string) string {
	hunks := Hunks(Lines(old, new), 3)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", span(h.OldStart, h.OldCount), span(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// span formats a hunk range. An empty range starts at the line before it.
func span(start, count int) string {
	if count == 0 {
		start--
	}
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
