// Package render decodes the structured analysis payload returned by the
// model and presents each recognised key on a Surface.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Key is a recognised top-level key of the analysis payload.
type Key string

const (
	KeyDebugInfo Key = "debug_info"
	KeyError     Key = "error"
	KeyAnswer    Key = "answer"
	KeyTable     Key = "table"
	KeyBar       Key = "bar"
	KeyLine      Key = "line"
	KeyPie       Key = "pie"
	KeyScatter   Key = "scatter"
)

// Keys lists the recognised keys in dispatch order.
var Keys = []Key{KeyDebugInfo, KeyError, KeyAnswer, KeyTable, KeyBar, KeyLine, KeyPie, KeyScatter}

// IsChart reports whether k is rendered as a chart.
func (k Key) IsChart() bool {
	switch k {
	case KeyBar, KeyLine, KeyPie, KeyScatter:
		return true
	}
	return false
}

// FallbackAnswer is shown when the model reply could not be used at all.
const FallbackAnswer = "Unable to analyze the data right now, please try again."

// Result is a decoded top-level JSON object. Values stay raw until Decode;
// unknown keys are kept so they still show up in the raw dump.
type Result map[string]json.RawMessage

// ErrNotObject is returned when a reply is valid JSON but not an object.
var ErrNotObject = errors.New("reply is not a JSON object")

// ParseResult decodes a model reply. Surrounding whitespace and a markdown
// code fence are tolerated; anything that is not a JSON object is an error.
func ParseResult(text string) (Result, error) {
	body := stripFence(strings.TrimSpace(text))
	if body == "" {
		return nil, errors.New("empty reply")
	}
	if !strings.HasPrefix(body, "{") {
		if json.Valid([]byte(body)) {
			return nil, ErrNotObject
		}
		return nil, fmt.Errorf("reply is not JSON: %.40q", body)
	}
	var r Result
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if r == nil {
		return nil, ErrNotObject
	}
	return r, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string, e.g. ```json
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// AnswerResult builds a result carrying only an answer.
func AnswerResult(text string) Result {
	b, _ := json.Marshal(text)
	return Result{string(KeyAnswer): b}
}

// FallbackResult is the fixed result used when extraction fails.
func FallbackResult() Result { return AnswerResult(FallbackAnswer) }

// Has reports whether k is present.
func (r Result) Has(k Key) bool {
	_, ok := r[string(k)]
	return ok
}

// JSON returns the result as compact JSON with keys sorted.
func (r Result) JSON() json.RawMessage {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(compact(r[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return []byte("null")
	}
	return buf.Bytes()
}
