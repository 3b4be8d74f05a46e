package payslip

import (
	"bytes"
	"fmt"
	"html/template"

	"siteadmin/internal/domain/payroll"
)

var htmlTemplate = template.Must(template.New("payslip").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; margin: 32px; color: #111; }
section { margin-bottom: 14px; }
h2 { font-size: 13px; border-bottom: 1px solid #444; margin: 0 0 6px; }
table { width: 100%; border-collapse: collapse; }
td { padding: 2px 0; }
td.value { text-align: right; }
.masthead p { margin: 0; font-weight: bold; }
.title p { font-size: 15px; font-weight: bold; text-align: center; }
.signatures { display: flex; justify-content: space-between; margin-top: 48px; }
.signatures p { border-top: 1px solid #111; padding-top: 4px; width: 40%; text-align: center; }
</style>
</head>
<body>
{{range .Sections}}<section class="{{.Name}}">
{{if .Heading}}<h2>{{.Heading}}</h2>
{{end}}{{if .Fields}}<table>
{{range .Fields}}<tr><td>{{.Label}}</td><td class="value">{{.Value}}</td></tr>
{{end}}</table>
{{end}}{{range .Lines}}<p>{{.}}</p>
{{end}}</section>
{{end}}</body>
</html>
`))

// HTML renders the document as a standalone escaped HTML page.
func HTML(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("%w: %w", payroll.ErrRender, err)
	}
	return buf.Bytes(), nil
}
