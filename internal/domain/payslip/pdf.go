package payslip

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"siteadmin/internal/domain/payroll"
)

const (
	pageMargin  = 15.0
	lineHeight  = 6.0
	valueColumn = 60.0
)

// PDF renders the document on A4 portrait pages.
func PDF(doc Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetTitle(doc.Title, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("cp1252")
	width, _ := pdf.GetPageSize()
	content := width - 2*pageMargin

	for _, s := range doc.Sections {
		switch s.Name {
		case SectionMasthead:
			pdf.SetFont("Helvetica", "B", 11)
			for _, line := range s.Lines {
				pdf.CellFormat(content, lineHeight, tr(line), "", 1, "L", false, 0, "")
			}
			pdf.Ln(4)
			continue
		case SectionTitle:
			pdf.SetFont("Helvetica", "B", 15)
			for _, line := range append([]string{s.Heading}, s.Lines...) {
				pdf.CellFormat(content, lineHeight+2, tr(line), "", 1, "C", false, 0, "")
			}
			pdf.Ln(4)
			continue
		case SectionSignatures:
			pdf.Ln(20)
			pdf.SetFont("Helvetica", "", 10)
			half := content / 2
			for i, line := range s.Lines {
				ln := 0
				if i == len(s.Lines)-1 {
					ln = 1
				}
				pdf.CellFormat(half, lineHeight, tr(line), "T", ln, "C", false, 0, "")
			}
			continue
		}

		if s.Heading != "" {
			pdf.SetFont("Helvetica", "B", 11)
			pdf.CellFormat(content, lineHeight, tr(s.Heading), "B", 1, "L", false, 0, "")
		}
		pdf.SetFont("Helvetica", "", 10)
		for _, f := range s.Fields {
			pdf.CellFormat(content-valueColumn, lineHeight, tr(f.Label), "", 0, "L", false, 0, "")
			pdf.CellFormat(valueColumn, lineHeight, tr(f.Value), "", 1, "R", false, 0, "")
		}
		for _, line := range s.Lines {
			pdf.MultiCell(content, lineHeight, tr(line), "", "L", false)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", payroll.ErrRender, err)
	}
	return buf.Bytes(), nil
}
