package dashboard

import "html/template"

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Alpha Quant Capital Dashboard</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: right; }
td:first-child, th:first-child { text-align: left; }
</style>
</head>
<body>
<h1>Alpha Quant Capital Dashboard</h1>
{{if .Rows}}
<h2>Performance Summary</h2>
<table>
<tr>{{range .Header}}<th><a href="/?sort={{.}}">{{.}}</a></th>{{end}}</tr>
{{range .Rows}}<tr>{{range $i, $v := .}}<td>{{if eq $i 0}}<a href="/api/strategies/{{$v}}">{{$v}}</a>{{else}}{{$v}}{{end}}</td>{{end}}</tr>
{{end}}
</table>
<p><a href="/api/summary.csv">Download Summary as CSV</a></p>
{{else}}
<p>{{.Empty}}</p>
{{end}}
</body>
</html>
`))
