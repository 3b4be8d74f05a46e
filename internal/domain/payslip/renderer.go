package payslip

import (
	"fmt"

	"siteadmin/internal/domain/payroll"
)

// Renderer adapts the document builders to the payroll service.
type Renderer struct {
	Issuer Issuer
}

func NewRenderer(issuer Issuer) *Renderer {
	return &Renderer{Issuer: issuer}
}

func (r *Renderer) document(in payroll.PayslipInput) (Document, error) {
	return Render(in.Item, in.Period, in.Rates, r.Issuer, in.IssuedAt)
}

func (r *Renderer) RenderHTML(in payroll.PayslipInput) ([]byte, error) {
	doc, err := r.document(in)
	if err != nil {
		return nil, err
	}
	return HTML(doc)
}

func (r *Renderer) RenderPDF(in payroll.PayslipInput) ([]byte, error) {
	doc, err := r.document(in)
	if err != nil {
		return nil, err
	}
	return PDF(doc)
}

func (r *Renderer) Subject(in payroll.PayslipInput) string {
	return fmt.Sprintf("Liquidación de sueldo %s %d - líquido %s", in.Period.MonthName(), in.Period.Year(), FormatCLP(in.Item.NetPay))
}
