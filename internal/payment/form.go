package payment

import (
	"bytes"
	"fmt"
	"html/template"
)

var redirectTemplate = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Sipay Ödeme Yönlendirme</title>
</head>
<body>
<div style="text-align:center;padding:50px;font-family:Arial,sans-serif">
<h2>Ödeme sayfasına yönlendiriliyorsunuz...</h2>
<p>Lütfen bekleyiniz.</p>
</div>
<form id="sipayForm" method="POST" action="{{.Action}}">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}" />
{{- end}}
</form>
<script>document.getElementById('sipayForm').submit();</script>
</body>
</html>
`))

// RenderRedirect renders the auto-submitting form document.
func RenderRedirect(action string, fields []FormField) (string, error) {
	var buf bytes.Buffer
	err := redirectTemplate.Execute(&buf, struct {
		Action string
		Fields []FormField
	}{Action: action, Fields: fields})
	if err != nil {
		return "", fmt.Errorf("payment: render redirect: %w", err)
	}
	return buf.String(), nil
}
