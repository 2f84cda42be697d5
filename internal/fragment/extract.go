package fragment

import (
	"fmt"
	"regexp"
	"strings"
)

// Fence opening, optional tag, newline, lazily matched body, closing fence.
var fencePattern = regexp.MustCompile("(?s)```([\\w:]+)?\\n(.*?)```")

// openFencePattern finds an opening fence with no partner.
var openFencePattern = regexp.MustCompile("```[\\w:]*\\n")

// UnterminatedFenceError reports an opening fence that is never closed.
type UnterminatedFenceError struct {
	Offset int // byte offset of the opening fence
	Line   int // 1-based line of the opening fence
}

func (e *UnterminatedFenceError) Error() string {
	return fmt.Sprintf("unterminated code fence at line %d", e.Line)
}

// Extract returns the tagged fragments of text in document order. Fences
// without a tag or with an empty body are dropped. If an opening fence is
// never closed, the fragments before it are returned together with an
// *UnterminatedFenceError.
func Extract(text string) ([]Fragment, error) {
	var frags []Fragment

	matches := fencePattern.FindAllStringSubmatchIndex(text, -1)
	end := 0
	for _, m := range matches {
		end = m[1]
		if m[2] < 0 {
			continue
		}
		tag := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		if tag == "" || body == "" {
			continue
		}
		frags = append(frags, newFragment(len(frags), tag, body, lineAt(text, m[0])))
	}

	if loc := openFencePattern.FindStringIndex(text[end:]); loc != nil {
		offset := end + loc[0]
		return frags, &UnterminatedFenceError{Offset: offset, Line: lineAt(text, offset)}
	}

	return frags, nil
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
