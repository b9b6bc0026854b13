package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// columnWeights widens the free-text columns of a schedule table relative
// to the short ones. Unlisted headers get weight 1.
var columnWeights = map[string]float64{
	"Period":  0.5,
	"Type":    0.7,
	"Course":  1.6,
	"Lesson":  1.8,
	"Details": 1.8,
}

// PDFExporter renders datasets into a landscape tabular PDF, one header row
// per page.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	widths := columnWidths(data.Headers, 277.0)
	writeHeader := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(225, 225, 225)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 8, header, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	writeHeader()

	pdf.SetFillColor(243, 243, 243)
	fill := false
	for _, row := range data.Rows {
		if pdf.GetY() > 185 {
			pdf.AddPage()
			writeHeader()
			pdf.SetFillColor(243, 243, 243)
		}
		pdf.SetFont("Arial", "", 9)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], 7, row[header], "1", 0, "", fill, 0, "")
		}
		pdf.Ln(-1)
		fill = !fill
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(headers []string, usable float64) []float64 {
	weights := make([]float64, len(headers))
	total := 0.0
	for i, header := range headers {
		w, ok := columnWeights[header]
		if !ok {
			w = 1.0
		}
		weights[i] = w
		total += w
	}
	widths := make([]float64, len(headers))
	for i, w := range weights {
		widths[i] = usable * w / total
	}
	return widths
}
