package tactile

import (
	"fmt"
	"strings"

	"codeprompt/internal/vars"
)

// Substitute replaces {key} placeholders in body with the string form of
// the matching context value. {a.b} descends into nested maps. {{ and }}
// produce literal braces. A placeholder naming an absent key fails with
// *MissingKeyError; nothing is partially substituted.
func Substitute(body string, v vars.Map) (string, error) {
	var sb strings.Builder
	sb.Grow(len(body))

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch c {
		case '{':
			if i+1 < len(body) && body[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(body[i+1:], '}')
			if end < 0 {
				return "", &FormatError{Offset: i, Reason: "single '{' encountered"}
			}
			key := body[i+1 : i+1+end]
			if key == "" {
				return "", &FormatError{Offset: i, Reason: "empty placeholder"}
			}
			val, ok := v.Lookup(key)
			if !ok {
				return "", &MissingKeyError{Key: key}
			}
			sb.WriteString(fmt.Sprint(val))
			i += end + 1
		case '}':
			if i+1 < len(body) && body[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return "", &FormatError{Offset: i, Reason: "single '}' encountered"}
		default:
			sb.WriteByte(c)
		}
	}

	return sb.String(), nil
}
