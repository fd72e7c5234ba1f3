package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxSigningAuthors is the fixed number of author slots on the copyright form.
// Tables and signature grids always render exactly this many slots.
const MaxSigningAuthors = 3

// Placeholder is shown for values and slots with nothing to display.
const Placeholder = "—"

// DefaultSource is the data path of the repeated entities in tables and signature grids.
const DefaultSource = "authors"

// SectionType is the closed set of section variants.
type SectionType string

const (
	SectionStaticHTML    SectionType = "static_html"
	SectionKeyValueGrid  SectionType = "key_value_grid"
	SectionDynamicTable  SectionType = "dynamic_table"
	SectionSignatureGrid SectionType = "signature_grid"
)

func (t SectionType) Known() bool {
	switch t {
	case SectionStaticHTML, SectionKeyValueGrid, SectionDynamicTable, SectionSignatureGrid:
		return true
	}
	return false
}

// Field is one key_value_grid entry. Key is a dot path into the data context.
type Field struct {
	Label     string `json:"label"`
	Key       string `json:"key"`
	Italic    bool   `json:"italic,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Highlight bool   `json:"highlight,omitempty"`
}

// RowSpec describes one property shown for every author slot of a dynamic_table.
type RowSpec struct {
	Key   string `json:"key"`
	Type  string `json:"type,omitempty"`
	Label string `json:"label"`
}

// Section is the union of all section variants. Only the fields of its Type are meaningful.
type Section struct {
	Type      SectionType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Title     string      `json:"title,omitempty"`
	HTML      string      `json:"html,omitempty"`
	Content   string      `json:"content,omitempty"`
	ClassName string      `json:"className,omitempty"`
	Fields    []Field     `json:"fields,omitempty"`
	Columns   []string    `json:"columns,omitempty"`
	Rows      []RowSpec   `json:"rows,omitempty"`
	Source    string      `json:"source,omitempty"`
}

// Markup returns the static_html body, accepting either html or content.
func (s Section) Markup() string {
	if s.HTML != "" {
		return s.HTML
	}
	return s.Content
}

// Version accepts either a JSON number or string.
type Version string

func (v *Version) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*v = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("version must be a string or number: %w", err)
	}
	*v = Version(n.String())
	return nil
}

// FormSchema is a parsed template. The original bytes are kept so the
// template round-trips unchanged.
type FormSchema struct {
	Version  Version
	Name     string
	Sections []Section
	Warnings []string

	raw json.RawMessage
}

// Parse decodes a template. Only an unreadable top-level document is an
// error; malformed sections are skipped and reported in Warnings.
func Parse(raw []byte) (*FormSchema, error) {
	var top struct {
		Version  Version         `json:"version"`
		Name     string          `json:"name"`
		Sections json.RawMessage `json:"sections"`
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("parse form schema: %w", err)
	}

	fs := &FormSchema{
		Version: top.Version,
		Name:    top.Name,
		raw:     append(json.RawMessage(nil), raw...),
	}

	trimmed := bytes.TrimSpace(top.Sections)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		fs.Warnings = append(fs.Warnings, "schema has no sections")
		return fs, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		fs.Warnings = append(fs.Warnings, "sections is not an array")
		return fs, nil
	}
	for i, item := range items {
		var sec Section
		if err := json.Unmarshal(item, &sec); err != nil {
			fs.Warnings = append(fs.Warnings, fmt.Sprintf("section %d: %v", i, err))
			continue
		}
		sec.Type = SectionType(strings.TrimSpace(string(sec.Type)))
		fs.Sections = append(fs.Sections, sec)
	}
	return fs, nil
}

// MarshalJSON returns the original template bytes when available.
func (s *FormSchema) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	return json.Marshal(struct {
		Version  Version   `json:"version"`
		Name     string    `json:"name,omitempty"`
		Sections []Section `json:"sections"`
	}{s.Version, s.Name, s.Sections})
}

// UnmarshalJSON parses raw with Parse so decoded schemas keep their wire form.
func (s *FormSchema) UnmarshalJSON(raw []byte) error {
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// Raw exposes the original template bytes.
func (s *FormSchema) Raw() json.RawMessage {
	return s.raw
}
