package render

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Surface receives the rendered pieces of a result. A method returning an
// error (or panicking) only fails its own key.
type Surface interface {
	Debug(text string) error
	Error(text string) error
	Answer(text string) error
	Table(t Table) error
	Chart(c Chart) error
	// Failure reports a key that could not be rendered together with its
	// raw, uncoerced value.
	Failure(key Key, err error, raw json.RawMessage)
	// Raw receives the whole result after every key was attempted.
	Raw(result json.RawMessage)
}

// KeyFailure records why a key was not rendered.
type KeyFailure struct {
	Key Key
	Err error
}

// Report summarises one render pass.
type Report struct {
	Rendered []Key
	Failures []KeyFailure
}

// OK reports whether every present key rendered.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Render decodes r and dispatches every present key to s.
func Render(r Result, s Surface) Report {
	return RenderDecoded(Decode(r), r, s)
}

// RenderDecoded dispatches the keys of d in order. Each key runs inside its
// own boundary so a failure is reported through Failure and the remaining
// keys are still attempted.
func RenderDecoded(d Decoded, raw Result, s Surface) Report {
	var rep Report
	for _, k := range Keys {
		st := d.Status(k)
		if st == Absent {
			continue
		}
		if err := dispatchKey(k, d, s); err != nil {
			rep.Failures = append(rep.Failures, KeyFailure{Key: k, Err: err})
			guard(func() { s.Failure(k, err, raw[string(k)]) })
			continue
		}
		rep.Rendered = append(rep.Rendered, k)
	}
	guard(func() { s.Raw(raw.JSON()) })
	return rep
}

func dispatchKey(k Key, d Decoded, s Surface) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic while rendering: %v", k, p)
		}
	}()
	switch k {
	case KeyDebugInfo:
		return renderText(d.DebugInfo, s.Debug)
	case KeyError:
		return renderText(d.Error, s.Error)
	case KeyAnswer:
		return renderText(d.Answer, s.Answer)
	case KeyTable:
		if d.Table.Status == Malformed {
			return d.Table.Err
		}
		return s.Table(d.Table.Value)
	}
	if k.IsChart() {
		f := d.Chart(k)
		if f.Status == Malformed {
			return f.Err
		}
		return s.Chart(f.Value)
	}
	return errors.New("unknown key")
}

func renderText(f Field[string], fn func(string) error) error {
	if f.Status == Malformed {
		return f.Err
	}
	return fn(f.Value)
}

// guard swallows panics from surface callbacks that have no error channel.
func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
