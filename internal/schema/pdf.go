package schema

import (
	"bytes"
	"fmt"
	"html"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	blockBreaks = strings.NewReplacer(
		"</p>", "\n\n", "<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"</li>", "\n", "<li>", "- ", "</h1>", "\n\n", "</h2>", "\n\n", "</h3>", "\n\n", "</div>", "\n",
	)
)

// pdfEpoch stands in for a zero creation date; gofpdf would stamp the wall clock.
var pdfEpoch = time.Unix(0, 0).UTC()

// EncodePDF renders the document to a printable record. createdAt is written
// as the PDF creation date so identical inputs give identical bytes.
func EncodePDF(doc *Document, createdAt time.Time) ([]byte, error) {
	if doc == nil {
		doc = &Document{}
	}
	if createdAt.IsZero() {
		createdAt = pdfEpoch
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(createdAt.UTC())
	pdf.SetModificationDate(createdAt.UTC())
	pdf.SetCatalogSort(true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	w.width = pageWidth - left - right

	if doc.Name != "" {
		pdf.SetFont("Helvetica", "B", 15)
		pdf.MultiCell(0, 8, w.tr(doc.Name), "", "C", false)
		pdf.Ln(4)
	}

	for i, block := range doc.Blocks {
		if block.Title != "" {
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 7, w.tr(block.Title), "", "L", false)
			pdf.Ln(1)
		}
		switch block.Type {
		case SectionStaticHTML:
			w.staticHTML(block.HTML)
		case SectionKeyValueGrid:
			w.fields(block.Fields)
		case SectionDynamicTable:
			w.table(block.Table)
		case SectionSignatureGrid:
			w.signatures(i, block.Signatures)
		}
		pdf.Ln(4)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render copyright pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf   *gofpdf.Fpdf
	tr    func(string) string
	width float64
}

// plainText flattens sanitized markup into paragraphs for the PDF body.
func plainText(markup string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(blockBreaks.Replace(markup)))
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (w *pdfWriter) staticHTML(markup string) {
	text := plainText(markup)
	if text == "" {
		return
	}
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.MultiCell(0, 5, w.tr(text), "", "J", false)
}

func (w *pdfWriter) fields(fields []FieldCell) {
	labelWidth := w.width * 0.35
	for _, f := range fields {
		w.pdf.SetFont("Helvetica", "B", 10)
		w.pdf.CellFormat(labelWidth, 7, w.tr(f.Label), "1", 0, "L", false, 0, "")

		style := ""
		if f.Bold {
			style += "B"
		}
		if f.Italic {
			style += "I"
		}
		w.pdf.SetFont("Helvetica", style, 10)
		if f.Highlight {
			w.pdf.SetFillColor(255, 243, 176)
		}
		w.pdf.CellFormat(w.width-labelWidth, 7, w.tr(f.Value), "1", 1, "L", f.Highlight, 0, "")
	}
}

func (w *pdfWriter) table(t *Table) {
	if t == nil {
		return
	}
	colWidth := w.width / float64(len(t.Columns))
	w.pdf.SetFont("Helvetica", "B", 9)
	w.pdf.SetFillColor(235, 235, 235)
	for _, c := range t.Columns {
		w.pdf.CellFormat(colWidth, 7, w.tr(c), "1", 0, "C", true, 0, "")
	}
	w.pdf.Ln(-1)
	for _, row := range t.Rows {
		w.pdf.SetFont("Helvetica", "B", 9)
		w.pdf.CellFormat(colWidth, 7, w.tr(row.Label), "1", 0, "L", false, 0, "")
		w.pdf.SetFont("Helvetica", "", 9)
		for _, cell := range row.Cells {
			w.pdf.CellFormat(colWidth, 7, w.tr(cell.Text), "1", 0, "L", false, 0, "")
		}
		w.pdf.Ln(-1)
	}
}

func (w *pdfWriter) signatures(block int, slots []SignatureSlot) {
	if len(slots) == 0 {
		return
	}
	boxWidth := w.width / float64(len(slots))
	const boxHeight = 32.0
	if _, pageHeight := w.pdf.GetPageSize(); w.pdf.GetY()+boxHeight > pageHeight-20 {
		w.pdf.AddPage()
	}
	x0, y0 := w.pdf.GetX(), w.pdf.GetY()

	for i, slot := range slots {
		x := x0 + float64(i)*boxWidth
		w.pdf.Rect(x, y0, boxWidth, boxHeight, "D")

		switch slot.State {
		case SlotSigned:
			if name, opts, ok := w.registerImage(block, slot); ok {
				w.pdf.ImageOptions(name, x+4, y0+2, boxWidth-8, 16, false, opts, 0, "")
			}
			w.caption(x, y0+20, boxWidth, "B", slot.Name)
			w.caption(x, y0+25, boxWidth, "", slot.Date)
		case SlotEmpty:
			w.caption(x, y0+12, boxWidth, "", Placeholder)
		default:
			w.caption(x, y0+12, boxWidth, "I", "Not signed")
		}
		if slot.AuthorName != "" {
			w.caption(x, y0+boxHeight+1, boxWidth, "", slot.AuthorName)
		}
	}
	w.pdf.SetXY(x0, y0+boxHeight+7)
}

func (w *pdfWriter) caption(x, y, width float64, style, text string) {
	w.pdf.SetXY(x, y)
	w.pdf.SetFont("Helvetica", style, 9)
	w.pdf.CellFormat(width, 5, w.tr(text), "", 0, "C", false, 0, "")
}

// registerImage adds a signature image under a name derived from its position.
// Images that fail to decode are left out and the printed name stands alone.
func (w *pdfWriter) registerImage(block int, slot SignatureSlot) (string, gofpdf.ImageOptions, bool) {
	data, mediaType, err := DecodeDataURL(slot.Image)
	if err != nil {
		return "", gofpdf.ImageOptions{}, false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", gofpdf.ImageOptions{}, false
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	if mediaType == "image/jpeg" {
		opts.ImageType = "JPG"
	}
	name := "sig-" + strconv.Itoa(block) + "-" + strconv.Itoa(slot.Slot)
	w.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if w.pdf.Err() {
		w.pdf.ClearError()
		return "", opts, false
	}
	return name, opts, true
}
