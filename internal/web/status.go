package web

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/ehsanking/elahe-messenger/internal/stats"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Messenger Status</title>
    <style>
        body { font-family: sans-serif; background-color: #f0f2f5; color: #333; padding: 40px; }
        .health { padding: 12px; border-radius: 8px; font-weight: 600; }
        .health.ok { background-color: #e8f5e9; color: #2e7d32; }
        .health.fail { background-color: #ffebee; color: #c62828; }
        table { border-collapse: collapse; margin-top: 20px; }
        td, th { padding: 6px 12px; border-bottom: 1px solid #ddd; text-align: left; }
    </style>
</head>
<body>
    <h1>Messenger Status</h1>
    <div class="health {{if eq .Status.ConnectionHealth "Connected"}}ok{{else}}fail{{end}}">{{.Status.ConnectionHealth}}</div>
    <table>
        <tr><th>Active streams</th><td>{{.Status.ActiveStreams}}</td></tr>
        <tr><th>Opened streams</th><td>{{.Status.OpenedStreams}}</td></tr>
        <tr><th>Connect failures</th><td>{{.Status.ConnectFailures}}</td></tr>
        <tr><th>Bytes in</th><td>{{.Status.BytesIn}}</td></tr>
        <tr><th>Bytes out</th><td>{{.Status.BytesOut}}</td></tr>
    </table>
    <table>
        <tr><th>Stream</th><th>Target</th><th>State</th><th>In</th><th>Out</th></tr>
        {{range .Streams}}<tr><td>{{.ID}}</td><td>{{.Target}}</td><td>{{.State}}</td><td>{{.BytesIn}}</td><td>{{.BytesOut}}</td></tr>
        {{end}}
    </table>
</body>
</html>
`))

func (s *Server) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Status  stats.Status
		Streams interface{}
	}{
		Status:  stats.GetStatus(s.staleAfter),
		Streams: s.streams.Snapshot(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		s.log.Error().Err(err).Msg("Error executing dashboard template")
	}
}

// StatusHandler serves the counters as JSON.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, stats.GetStatus(s.staleAfter))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
