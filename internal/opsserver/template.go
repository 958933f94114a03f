package opsserver

import (
	"fmt"
	"html/template"
)

const dashboardHTML = `
<!DOCTYPE html>
<html>
	<head>
		<meta charset="UTF-8">
		<title>mesh-ingest status</title>
	</head>
	<body>
		<h1>mesh-ingest status</h1>
		<h2>broker sessions</h2>
		<table border="1" cellpadding="4">
			<tr><th>broker</th><th>state</th></tr>
			{{range .Brokers}}<tr><td>{{.Name}}</td><td>{{.State}}</td></tr>{{end}}
		</table>
		<h2>group buffer</h2>
		<p>{{.Pending}} message group(s) pending flush</p>
	</body>
</html>`

type dashboardData struct {
	Brokers []BrokerStatus
	Pending int
}

var dashboardTpl *template.Template

func init() {
	var err error
	dashboardTpl, err = template.New("dashboard").Parse(dashboardHTML)
	if err != nil {
		panic(fmt.Sprintf("template parse error %s", err))
	}
}
