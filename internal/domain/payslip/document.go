package payslip

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"siteadmin/internal/domain/amountwords"
	"siteadmin/internal/domain/payroll"
)

const (
	SectionMasthead        = "masthead"
	SectionTitle           = "title"
	SectionEmployer        = "employer"
	SectionEmployee        = "employee"
	SectionContributions   = "contributions"
	SectionWorkSummary     = "work_summary"
	SectionEarnings        = "earnings"
	SectionDeductions      = "deductions"
	SectionClosing         = "closing"
	SectionAmountInWords   = "amount_in_words"
	SectionAcknowledgement = "acknowledgement"
	SectionSignatures      = "signatures"
)

const acknowledgement = "Certifico que he recibido de mi empleador, a mi entera satisfacción, el total líquido " +
	"indicado en la presente liquidación y que no tengo cargo ni cobro alguno posterior que hacer por los conceptos en ella comprendidos."

// Issuer identifies the employer printed on every pay slip.
type Issuer struct {
	Name           string
	RUT            string
	Address        string
	Representative string
}

type Field struct {
	Label string
	Value string
}

type Section struct {
	Name    string
	Heading string
	Fields  []Field
	Lines   []string
}

// Document is a backend-neutral pay slip: named sections in print order.
type Document struct {
	Title    string
	Sections []Section
}

func (d Document) Section(name string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

func (s Section) Value(label string) string {
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	return ""
}

// cases.Caser is stateful, so each call builds its own.
func upper(s string) string {
	return cases.Upper(language.Spanish).String(s)
}

// Render lays out one line item as a pay slip document.
func Render(item payroll.LineItem, period payroll.Period, rates payroll.RateSet, issuer Issuer, issuedAt time.Time) (Document, error) {
	if item.NetPay < 0 {
		return Document{}, fmt.Errorf("%w: negative net pay for %s", payroll.ErrRender, item.EmployeeName)
	}
	words, err := amountwords.ToWords(item.NetPay)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", payroll.ErrRender, err)
	}

	afcRate := rates.AFCWorkerFixedTerm
	if item.ContractType == payroll.ContractIndefinite {
		afcRate = rates.AFCWorkerIndefinite
	}
	monthYear := fmt.Sprintf("%s %d", period.MonthName(), period.Year())

	doc := Document{Title: "LIQUIDACION DE SUELDO " + monthYear}
	doc.Sections = []Section{
		{
			Name:  SectionMasthead,
			Lines: nonEmpty(upper(issuer.Name), rutLine(issuer.RUT)),
		},
		{
			Name:    SectionTitle,
			Heading: "LIQUIDACION DE SUELDO",
			Lines:   []string{"MES DE " + monthYear},
		},
		{
			Name:    SectionEmployer,
			Heading: "EMPLEADOR",
			Fields: []Field{
				{Label: "RAZON SOCIAL", Value: upper(issuer.Name)},
				{Label: "RUT", Value: issuer.RUT},
				{Label: "DIRECCION", Value: issuer.Address},
				{Label: "REPRESENTANTE LEGAL", Value: upper(issuer.Representative)},
			},
		},
		{
			Name:    SectionEmployee,
			Heading: "TRABAJADOR",
			Fields: []Field{
				{Label: "NOMBRE", Value: upper(strings.TrimSpace(item.EmployeeName))},
				{Label: "RUT", Value: item.EmployeeNationalID},
				{Label: "CARGO", Value: upper(item.Position)},
				{Label: "CODIGO", Value: SequenceCode(item.Sequence)},
			},
		},
		{
			Name:    SectionContributions,
			Heading: "PREVISION",
			Fields: []Field{
				{Label: "AFP " + FormatPercent(rates.AFPWorkerRate), Value: FormatCLP(item.AFPDeduction)},
				{Label: "FONASA " + FormatPercent(rates.FonasaRate), Value: FormatCLP(item.HealthDeduction)},
				{Label: "SEGURO CESANTIA " + FormatPercent(afcRate), Value: FormatCLP(item.AFCDeduction)},
			},
		},
		{
			Name:    SectionWorkSummary,
			Heading: "RESUMEN",
			Fields: []Field{
				{Label: "DIAS TRABAJADOS", Value: FormatCount(int64(item.WorkedDays))},
				{Label: "HORAS EXTRAS", Value: FormatHours(item.OvertimeHours)},
				{Label: "HORAS AUSENCIA", Value: "0"},
				{Label: "CARGAS FAMILIARES", Value: "0"},
				{Label: "TOTAL IMPONIBLE", Value: FormatCLP(item.GrossTaxable)},
				{Label: "TOTAL LIQUIDO", Value: FormatCLP(item.NetPay)},
			},
		},
		{
			Name:    SectionEarnings,
			Heading: "HABERES",
			Fields: []Field{
				{Label: "SUELDO BASE", Value: FormatCLP(item.BaseSalary)},
				{Label: "SUELDO PROPORCIONAL", Value: FormatCLP(item.NormalPay)},
				{Label: "HORAS EXTRAS", Value: FormatCLP(item.OvertimeAmount)},
				{Label: "GRATIFICACION", Value: FormatCLP(item.GratificationAmount)},
				{Label: "TOTAL IMPONIBLE", Value: FormatCLP(item.GrossTaxable)},
				{Label: "ASIGNACION FAMILIAR", Value: FormatCLP(item.FamilyAllowance)},
				{Label: "TOTAL NO IMPONIBLE", Value: FormatCLP(item.GrossNonTaxable)},
			},
		},
		{
			Name:    SectionDeductions,
			Heading: "DESCUENTOS",
			Fields: []Field{
				{Label: "AFP", Value: FormatCLP(item.AFPDeduction)},
				{Label: "SALUD", Value: FormatCLP(item.HealthDeduction)},
				{Label: "SEGURO CESANTIA", Value: FormatCLP(item.AFCDeduction)},
				{Label: "TOTAL DESCUENTOS LEGALES", Value: FormatCLP(item.LegalDeductions())},
				{Label: "IMPUESTO UNICO", Value: FormatCLP(item.TaxDeduction)},
			},
		},
		{
			Name: SectionClosing,
			Fields: []Field{
				{Label: "TOTAL HABERES", Value: FormatCLP(item.TotalEarnings())},
				{Label: "TOTAL DESCUENTOS", Value: FormatCLP(item.TotalDeductions())},
				{Label: "FECHA EMISION", Value: issuedAt.Format("02/01/2006")},
				{Label: "LIQUIDO A PAGAR", Value: FormatCLP(item.NetPay)},
			},
		},
		{
			Name:  SectionAmountInWords,
			Lines: []string{"SON: " + words + " PESOS"},
		},
		{
			Name:  SectionAcknowledgement,
			Lines: []string{acknowledgement},
		},
		{
			Name:  SectionSignatures,
			Lines: []string{"FIRMA EMPLEADOR", "FIRMA TRABAJADOR"},
		},
	}
	return doc, nil
}

// SequenceCode is the zero-padded position of the item within its run.
func SequenceCode(sequence int) string {
	return fmt.Sprintf("%04d", sequence)
}

func rutLine(rut string) string {
	if rut == "" {
		return ""
	}
	return "RUT " + rut
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
