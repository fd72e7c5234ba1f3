package schema

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const templateJSON = `{
  "version": 3,
  "name": "Copyright Transfer Agreement",
  "sections": [
    {"type": "static_html", "id": "intro", "className": "terms\" onclick=\"x", "html": "<p class=\"lead\">The undersigned <b>authors</b> transfer copyright.</p><script>alert(1)</script><a href=\"javascript:alert(1)\">x</a>"},
    {"type": "key_value_grid", "title": "Manuscript", "fields": [
      {"label": "Journal", "key": "journal.title", "bold": true},
      {"label": "Title", "key": "manuscriptTitle", "italic": true},
      {"label": "ISSN", "key": "journal.issn", "highlight": true}
    ]},
    {"type": "dynamic_table", "title": "Authors", "columns": ["", "First author"], "rows": [
      {"key": "name", "type": "text", "label": "Name"},
      {"key": "email", "type": "email", "label": "Email"}
    ]},
    {"type": "pull_quote", "text": "ignored"},
    {"type": "signature_grid", "title": "Signatures"}
  ]
}`

func loadTemplate(t *testing.T) *FormSchema {
	t.Helper()
	s, err := Parse([]byte(templateJSON))
	require.NoError(t, err)
	return s
}

func oneAuthor(t *testing.T) Value {
	return mustValue(t, `{"journal":{"title":"Journal of Graphs"},"manuscriptTitle":"On colorings","authors":[{"name":"Ann Lee","email":"ann@example.org"}]}`)
}

func TestRenderDeterministic(t *testing.T) {
	s := loadTemplate(t)
	data := oneAuthor(t)
	sigs := SignatureMap{0: {Name: "Ann Lee", Date: "2024-05-01"}}

	first, err := json.Marshal(Render(s, data, sigs, nil))
	require.NoError(t, err)
	second, err := json.Marshal(Render(s, data, sigs, nil))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	htmlA, err := EncodeHTML(Render(s, data, sigs, nil))
	require.NoError(t, err)
	htmlB, err := EncodeHTML(Render(s, data, sigs, nil))
	require.NoError(t, err)
	assert.Equal(t, htmlA, htmlB)

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pdfA, err := EncodePDF(Render(s, data, sigs, nil), created)
	require.NoError(t, err)
	pdfB, err := EncodePDF(Render(s, data, sigs, nil), created)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdfA), "%PDF-"))
	assert.True(t, bytes.Equal(pdfA, pdfB))
}

func TestEncodePDFZeroDateIsStable(t *testing.T) {
	doc := Render(loadTemplate(t), oneAuthor(t), nil, nil)

	first, err := EncodePDF(doc, time.Time{})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	second, err := EncodePDF(doc, time.Time{})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))
}

func TestRenderFixedThreeSlots(t *testing.T) {
	doc := Render(loadTemplate(t), oneAuthor(t), nil, nil)
	require.Len(t, doc.Blocks, 4)

	table := doc.Blocks[2].Table
	require.NotNil(t, table)
	assert.Equal(t, []string{"", "First author", "Author 2", "Author 3"}, table.Columns)
	for _, row := range table.Rows {
		require.Len(t, row.Cells, MaxSigningAuthors)
		assert.False(t, row.Cells[0].Missing)
		assert.Equal(t, Cell{Text: Placeholder, Missing: true}, row.Cells[1])
		assert.Equal(t, Cell{Text: Placeholder, Missing: true}, row.Cells[2])
	}
	assert.Equal(t, "ann@example.org", table.Rows[1].Cells[0].Text)

	slots := doc.Blocks[3].Signatures
	require.Len(t, slots, MaxSigningAuthors)
	assert.Equal(t, SlotNotSigned, slots[0].State)
	assert.Equal(t, SlotEmpty, slots[1].State)
	assert.Equal(t, SlotEmpty, slots[2].State)
}

func TestRenderTruncatesToThreeAuthors(t *testing.T) {
	data := mustValue(t, `{"authors":[{"name":"A"},{"name":"B"},{"name":"C"},{"name":"D"}]}`)
	doc := Render(loadTemplate(t), data, nil, nil)
	table := doc.Blocks[2].Table
	assert.Equal(t, []string{"A", "B", "C"}, []string{table.Rows[0].Cells[0].Text, table.Rows[0].Cells[1].Text, table.Rows[0].Cells[2].Text})
	assert.Len(t, doc.Blocks[3].Signatures, MaxSigningAuthors)
}

func TestSignatureSlotStates(t *testing.T) {
	data := mustValue(t, `{"authors":[{"name":"A"},{"name":"B"}]}`)
	sigs := SignatureMap{0: {Image: "data:image/png;base64,AAAA", Name: "A", Date: "2024-05-01"}, 2: {Name: "ghost"}}

	interactive := Render(loadTemplate(t), data, sigs, func(slot int) string {
		return "/sign?slot=" + string(rune('0'+slot))
	})
	slots := interactive.Blocks[3].Signatures
	assert.False(t, interactive.ReadOnly)
	assert.Equal(t, SlotSigned, slots[0].State)
	assert.Equal(t, "2024-05-01", slots[0].Date)
	assert.Equal(t, SlotSignAction, slots[1].State)
	assert.Equal(t, "/sign?slot=1", slots[1].Action)
	assert.Equal(t, "B", slots[1].AuthorName)
	assert.Equal(t, SlotEmpty, slots[2].State)
	assert.Equal(t, Placeholder, slots[2].Name)
	assert.Contains(t, strings.Join(interactive.Warnings, "\n"), "slot 2 has no author")

	readOnly := Render(loadTemplate(t), data, sigs, nil)
	assert.True(t, readOnly.ReadOnly)
	assert.Equal(t, SlotNotSigned, readOnly.Blocks[3].Signatures[1].State)
	assert.Empty(t, readOnly.Blocks[3].Signatures[1].Action)
}

func TestKeyValueGridPlaceholders(t *testing.T) {
	doc := Render(loadTemplate(t), mustValue(t, `{}`), nil, nil)
	fields := doc.Blocks[1].Fields
	require.Len(t, fields, 3)
	for _, f := range fields {
		assert.True(t, f.Missing)
		assert.Equal(t, Placeholder, f.Value)
	}
	assert.True(t, fields[0].Bold)
	assert.True(t, fields[2].Highlight)
}

func TestUnknownSectionSkippedWithWarning(t *testing.T) {
	doc := Render(loadTemplate(t), oneAuthor(t), nil, nil)
	for _, b := range doc.Blocks {
		assert.NotEqual(t, SectionType("pull_quote"), b.Type)
	}
	assert.Contains(t, strings.Join(doc.Warnings, "\n"), `unknown type "pull_quote"`)
}

func TestStaticHTMLIsSanitized(t *testing.T) {
	doc := Render(loadTemplate(t), oneAuthor(t), nil, nil)
	block := doc.Blocks[0]
	assert.NotContains(t, block.HTML, "<script")
	assert.NotContains(t, block.HTML, "javascript:")
	assert.Contains(t, block.HTML, "<b>authors</b>")
	assert.Contains(t, block.HTML, `class="lead"`)
	assert.Equal(t, "terms onclickx", block.ClassName)

	out, err := EncodeHTML(doc)
	require.NoError(t, err)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, `onclick="`)
}

func TestMalformedSchemasRenderEmpty(t *testing.T) {
	assert.Empty(t, Render(nil, Missing(), nil, nil).Blocks)

	for _, raw := range []string{`{"version":"1"}`, `{"sections":null}`, `{"sections":{"type":"static_html"}}`, `{"sections":5}`} {
		s, err := Parse([]byte(raw))
		require.NoError(t, err, raw)
		doc := Render(s, Missing(), nil, nil)
		assert.Empty(t, doc.Blocks, raw)
		assert.NotEmpty(t, doc.Warnings, raw)
	}

	s, err := Parse([]byte(`{"sections":[{"type":"key_value_grid","fields":"nope"},{"type":"signature_grid"}]}`))
	require.NoError(t, err)
	assert.Len(t, s.Sections, 1)
	assert.Len(t, s.Warnings, 1)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestSchemaRoundTripsBytes(t *testing.T) {
	s := loadTemplate(t)
	assert.Equal(t, Version("3"), s.Version)
	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, templateJSON, string(out))
	assert.Equal(t, templateJSON, string(s.Raw()))
}

func TestEncodeHTMLEscapesValues(t *testing.T) {
	data := mustValue(t, `{"journal":{"title":"<img src=x onerror=alert(1)>"},"authors":[{"name":"A"}]}`)
	sigs := SignatureMap{0: {Image: "javascript:alert(1)", Name: "A"}}
	out, err := EncodeHTML(Render(loadTemplate(t), data, sigs, nil))
	require.NoError(t, err)
	assert.Contains(t, out, "&lt;img src=x onerror=alert(1)&gt;")
	assert.NotContains(t, out, "javascript:alert")
}

func TestDecodeDataURL(t *testing.T) {
	data, mediaType, err := DecodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, "hello", string(data))

	_, _, err = DecodeDataURL("data:image/svg+xml;base64,aGVsbG8=")
	assert.Error(t, err)
	_, _, err = DecodeDataURL("data:image/png,hello")
	assert.Error(t, err)
}
