package schema

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/microcosm-cc/bluemonday"
)

// Signature is an author's signature for one slot.
type Signature struct {
	Image string `json:"signatureImage,omitempty"`
	Date  string `json:"date,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Signed reports whether the signature carries anything to show.
func (s *Signature) Signed() bool {
	return s != nil && (s.Image != "" || s.Name != "")
}

// SignatureMap binds signatures to author slots by index.
type SignatureMap map[int]*Signature

// SignFunc returns the action target for signing a slot. A nil SignFunc puts
// the renderer in read-only mode.
type SignFunc func(slot int) string

// SlotState is what a signature slot shows.
type SlotState string

const (
	SlotSigned     SlotState = "signed"
	SlotSignAction SlotState = "sign_action"
	SlotNotSigned  SlotState = "not_signed"
	SlotEmpty      SlotState = "empty"
)

// Document is the rendered form. It is a pure function of its inputs.
type Document struct {
	Name     string   `json:"name,omitempty"`
	Version  string   `json:"version,omitempty"`
	ReadOnly bool     `json:"readOnly"`
	Blocks   []Block  `json:"blocks"`
	Warnings []string `json:"warnings,omitempty"`
}

// Block is one rendered section.
type Block struct {
	Type       SectionType     `json:"type"`
	ID         string          `json:"id,omitempty"`
	Title      string          `json:"title,omitempty"`
	ClassName  string          `json:"className,omitempty"`
	HTML       string          `json:"html,omitempty"`
	Fields     []FieldCell     `json:"fields,omitempty"`
	Table      *Table          `json:"table,omitempty"`
	Signatures []SignatureSlot `json:"signatures,omitempty"`
}

type FieldCell struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	Missing   bool   `json:"missing,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Highlight bool   `json:"highlight,omitempty"`
}

// Table has one header per author slot, preceded by the row label header.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

type TableRow struct {
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
	Cells []Cell `json:"cells"`
}

type Cell struct {
	Text    string `json:"text"`
	Missing bool   `json:"missing,omitempty"`
}

type SignatureSlot struct {
	Slot       int       `json:"slot"`
	State      SlotState `json:"state"`
	AuthorName string    `json:"authorName,omitempty"`
	Image      string    `json:"image,omitempty"`
	Name       string    `json:"name,omitempty"`
	Date       string    `json:"date,omitempty"`
	Action     string    `json:"action,omitempty"`
}

var (
	htmlPolicy = newHTMLPolicy()
	classRe    = regexp.MustCompile(`[^A-Za-z0-9_ -]`)
)

func newHTMLPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[A-Za-z0-9_ -]*$`)).Globally()
	return p
}

// SanitizeHTML strips anything outside the user generated content allow-list.
func SanitizeHTML(markup string) string {
	return htmlPolicy.Sanitize(markup)
}

// Render interprets s against data. Sections render in order; unknown types
// are skipped with a warning. A nil schema yields an empty document.
func Render(s *FormSchema, data Value, sigs SignatureMap, onSign SignFunc) *Document {
	doc := &Document{ReadOnly: onSign == nil, Blocks: []Block{}}
	if s == nil {
		doc.Warnings = append(doc.Warnings, "no schema")
		return doc
	}
	doc.Name = s.Name
	doc.Version = string(s.Version)
	doc.Warnings = append(doc.Warnings, s.Warnings...)

	for i, sec := range s.Sections {
		block := Block{Type: sec.Type, ID: sec.ID, Title: sec.Title}
		switch sec.Type {
		case SectionStaticHTML:
			block.ClassName = sanitizeClass(sec.ClassName)
			block.HTML = SanitizeHTML(sec.Markup())
		case SectionKeyValueGrid:
			block.Fields = renderFields(sec.Fields, data)
		case SectionDynamicTable:
			block.Table = renderTable(sec, data)
		case SectionSignatureGrid:
			var orphans []int
			block.Signatures, orphans = renderSignatures(sec, data, sigs, onSign)
			for _, slot := range orphans {
				doc.Warnings = append(doc.Warnings, fmt.Sprintf("section %d: signature for slot %d has no author", i, slot))
			}
		default:
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("section %d: unknown type %q skipped", i, sec.Type))
			continue
		}
		doc.Blocks = append(doc.Blocks, block)
	}
	return doc
}

func renderFields(fields []Field, data Value) []FieldCell {
	out := make([]FieldCell, 0, len(fields))
	for _, f := range fields {
		cell := FieldCell{Label: f.Label, Italic: f.Italic, Bold: f.Bold, Highlight: f.Highlight}
		cell.Value, cell.Missing = display(Resolve(data, f.Key))
		out = append(out, cell)
	}
	return out
}

func renderTable(sec Section, data Value) *Table {
	entities := Resolve(data, source(sec))
	t := &Table{Columns: tableColumns(sec.Columns), Rows: make([]TableRow, 0, len(sec.Rows))}
	for _, spec := range sec.Rows {
		row := TableRow{Label: spec.Label, Type: spec.Type, Cells: make([]Cell, MaxSigningAuthors)}
		for slot := 0; slot < MaxSigningAuthors; slot++ {
			entity := entities.Index(slot)
			if !entity.IsPresent() {
				row.Cells[slot] = Cell{Text: Placeholder, Missing: true}
				continue
			}
			text, missing := display(Resolve(entity, spec.Key))
			row.Cells[slot] = Cell{Text: text, Missing: missing}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// tableColumns pads or trims the declared headers to a label column plus one per slot.
func tableColumns(declared []string) []string {
	cols := make([]string, MaxSigningAuthors+1)
	for i := range cols {
		if i < len(declared) {
			cols[i] = declared[i]
		} else if i > 0 {
			cols[i] = "Author " + strconv.Itoa(i)
		}
	}
	return cols
}

func renderSignatures(sec Section, data Value, sigs SignatureMap, onSign SignFunc) ([]SignatureSlot, []int) {
	entities := Resolve(data, source(sec))
	slots := make([]SignatureSlot, MaxSigningAuthors)
	var orphans []int
	for i := 0; i < MaxSigningAuthors; i++ {
		slot := SignatureSlot{Slot: i}
		author := entities.Index(i)
		sig := sigs[i]
		switch {
		case !author.IsPresent():
			slot.State = SlotEmpty
			slot.Name = Placeholder
			if sig.Signed() {
				orphans = append(orphans, i)
			}
		case sig.Signed():
			slot.State = SlotSigned
			slot.Image = sig.Image
			slot.Name = sig.Name
			slot.Date = sig.Date
		case onSign != nil:
			slot.State = SlotSignAction
			slot.Action = onSign(i)
		default:
			slot.State = SlotNotSigned
		}
		if author.IsPresent() {
			slot.AuthorName = author.Get("name").Text()
		}
		slots[i] = slot
	}
	return slots, orphans
}

func source(sec Section) string {
	if sec.Source != "" {
		return sec.Source
	}
	return DefaultSource
}

func display(v Value) (string, bool) {
	text := v.Text()
	if text == "" {
		return Placeholder, true
	}
	return text, false
}

func sanitizeClass(name string) string {
	return classRe.ReplaceAllString(name, "")
}
