package render

import (
	"encoding/json"
)

// Section kinds emitted by View.
const (
	SectionDebug   = "debug"
	SectionError   = "error"
	SectionAnswer  = "answer"
	SectionTable   = "table"
	SectionChart   = "chart"
	SectionFailure = "failure"
	SectionRaw     = "raw"
)

// Section is one JSON-serialisable block of a rendered result.
type Section struct {
	Kind  string          `json:"kind"`
	Key   Key             `json:"key,omitempty"`
	Text  string          `json:"text,omitempty"`
	Table *Table          `json:"table,omitempty"`
	Chart *Chart          `json:"chart,omitempty"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

// View collects sections for a web front-end. The zero value drops the
// trailing raw dump; set IncludeRaw to keep it.
type View struct {
	IncludeRaw bool
	Sections   []Section
}

func (v *View) add(s Section) error {
	v.Sections = append(v.Sections, s)
	return nil
}

func (v *View) Debug(text string) error {
	return v.add(Section{Kind: SectionDebug, Key: KeyDebugInfo, Text: text})
}

func (v *View) Error(text string) error {
	return v.add(Section{Kind: SectionError, Key: KeyError, Text: text})
}

func (v *View) Answer(text string) error {
	return v.add(Section{Kind: SectionAnswer, Key: KeyAnswer, Text: text})
}

func (v *View) Table(t Table) error {
	return v.add(Section{Kind: SectionTable, Key: KeyTable, Table: &t})
}

func (v *View) Chart(c Chart) error {
	return v.add(Section{Kind: SectionChart, Key: c.Kind, Chart: &c})
}

func (v *View) Failure(key Key, err error, raw json.RawMessage) {
	_ = v.add(Section{Kind: SectionFailure, Key: key, Text: err.Error(), Raw: raw})
}

func (v *View) Raw(result json.RawMessage) {
	if v.IncludeRaw {
		_ = v.add(Section{Kind: SectionRaw, Raw: result})
	}
}

// Sections renders r into a fresh View and returns its sections.
func Sections(r Result, includeRaw bool) []Section {
	v := &View{IncludeRaw: includeRaw}
	Render(r, v)
	return v.Sections
}
