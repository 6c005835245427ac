package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	maxCellRunes = 40
	rowHeight    = 7.0
)

// renderPDF lays data out as an A4 table. Wide tables switch to landscape, the
// header row repeats on every page and columns are sized by their content.
func renderPDF(data Dataset, title string, generatedAt time.Time) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation, usable := "P", 190.0
	if len(data.Headers) > 5 {
		orientation, usable = "L", 277.0
	}

	pdf := gofpdf.New(orientation, "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	widths := columnWidths(data, usable)

	drawHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], rowHeight+1, tr(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}

	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() > 1 {
			drawHeader()
		}
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 7)
		pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", generatedAt.UTC().Format(time.RFC3339)), "", 0, "L", false, 0, "")
		left, _, _, _ := pdf.GetMargins()
		pdf.SetX(left)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d rows", len(data.Rows)), "", 1, "L", false, 0, "")
		pdf.Ln(3)
	}
	drawHeader()

	for n, row := range data.Rows {
		shade := n%2 == 1
		if shade {
			pdf.SetFillColor(246, 246, 246)
		}
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], rowHeight, tr(truncate(row[header], maxCellRunes)), "LR", 0, "", shade, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.CellFormat(usable, 0, "", "T", 1, "", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths splits usable proportionally to each column's widest value,
// clamped to maxCellRunes and never narrower than its header.
func columnWidths(data Dataset, usable float64) []float64 {
	weights := make([]float64, len(data.Headers))
	total := 0.0
	for i, header := range data.Headers {
		widest := len([]rune(header))
		for _, row := range data.Rows {
			if n := len([]rune(row[header])); n > widest {
				widest = n
			}
		}
		if widest > maxCellRunes {
			widest = maxCellRunes
		}
		if widest < 4 {
			widest = 4
		}
		weights[i] = float64(widest)
		total += weights[i]
	}
	for i := range weights {
		weights[i] = usable * weights[i] / total
	}
	return weights
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
