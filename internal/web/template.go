package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/lightpanel/internal/eventlog"
	"github.com/sweeney/lightpanel/internal/relay"
	"github.com/sweeney/lightpanel/internal/sequence"
	"github.com/sweeney/lightpanel/internal/sheet"
	"github.com/sweeney/lightpanel/internal/status"
)

// logTail is the number of event-log lines rendered into the page.
const logTail = 50

type lamp struct {
	Index int
	On    bool
	Guard bool
}

type pageData struct {
	status.Snapshot
	Uptime time.Duration
	Lamps  []lamp
	Log    []eventlog.Entry
	Sheet  *sheet.Sheet
	Modes  []sequence.Trigger
	Quicks []sequence.Trigger
}

func (s *Server) pageData() pageData {
	snap := s.Tracker.Snapshot()
	word := s.Panel.Word()
	lamps := make([]lamp, relay.Count)
	for i := range lamps {
		r := relay.Index(i)
		lamps[i] = lamp{Index: i, On: word.On(r), Guard: r == relay.GuardLow || r == relay.GuardHigh}
	}
	return pageData{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Lamps:    lamps,
		Log:      s.Events.Tail(logTail),
		Sheet:    s.Table.Sheet(),
		Modes:    sequence.Modes,
		Quicks:   sequence.Quicks,
	}
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"add": func(a, b int) int { return a + b },
	"clock": func(t time.Time) string { return t.Format("15:04:05") },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Light Panel{{if .Sheet.SiteName}} - {{.Sheet.SiteName}}{{end}}</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.lamps span { display: inline-block; width: 3em; text-align: center; padding: 4px; margin: 2px; border: 1px solid #888; border-radius: 4px; cursor: pointer; }
.lamps .on { background: #fc3; font-weight: bold; }
.lamps .guard { border-color: #c33; }
.sim { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; margin: 2px; }
#log { background: #111; color: #ddd; padding: 8px; height: 20em; overflow-y: scroll; white-space: pre; }
</style>
</head>
<body>
<h1>Light Panel{{if .Sheet.SiteName}} - {{.Sheet.SiteName}}{{end}}</h1>

<h2>Relays</h2>
<div class="lamps">{{range .Lamps}}<span class="{{if .On}}on{{end}}{{if .Guard}} guard{{end}}" onclick="post('/relays/{{.Index}}/pulse')">R{{.Index}}</span>{{end}}</div>
<p>Word {{.Panel.Word}}{{if .Panel.Running}} &middot; running <b>{{.Panel.Running}}</b>{{end}}{{if .Panel.Queued}} &middot; {{.Panel.Queued}} queued{{end}}{{if .Panel.Waiting}} &middot; waiting for next step{{end}}</p>

<h2>Sequences</h2>
<p>
<button onclick="post('/sequences/test-all')">Test All Relays</button>
<button onclick="post('/sequences/program-mode')">Programming Mode</button>
<button onclick="post('/sequences/exit-program-mode')">Exit Programming Mode</button>
<button onclick="if (confirm('Are you sure you want to reset?')) post('/sequences/reset?confirm=true')">Reset</button>
<button onclick="post('/relays/all-off')">All Off</button>
<button onclick="post('/cancel')">Cancel</button>
</p>
<p>{{range .Modes}}<button onclick="post('/modes/{{.Key}}')">{{.Name}}</button>{{end}}</p>
<p>{{range .Quicks}}<button onclick="post('/quick/{{.Key}}')">{{.Name}}</button>{{end}}</p>
<p>
<button onclick="put('/debug', {enabled: {{if .Panel.Debug}}false{{else}}true{{end}}})">Debug {{if .Panel.Debug}}off{{else}}on{{end}}</button>
{{if .Panel.Debug}}<button onclick="post('/debug/advance')">Next Step</button>{{end}}
Hold {{.Panel.Hold}}
</p>

<h2>Event Log</h2>
<div id="log">{{range .Log}}{{clock .Time}} {{.Text}}
{{end}}</div>

<h2>Levels Sheet</h2>
<p><a href="/sheet.csv">Download CSV</a></p>
<table>
<tr><th>Ch</th><th>Zone</th><th>Name</th><th>Type</th><th>Scenes 1-9,0</th></tr>
{{range $i, $r := .Sheet.Rows}}<tr><td>{{add $i 1}}</td><td>{{$r.Zone}}</td><td>{{$r.Name}}</td><td>{{$r.Type}}</td><td>{{range $r.Scenes}}{{.}} {{end}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Hardware</th><td{{if .Hardware.Simulated}} class="sim"{{end}}>{{.Hardware.Driver}}{{if .Hardware.Simulated}} (simulated){{end}}</td></tr>
{{if .Hardware.Fallback}}<tr><th>Fallback</th><td>{{.Hardware.Fallback}}</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Panel.Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Operations</th><td>{{.Counts.Completed}} ok, {{.Counts.Failed}} failed, {{.Counts.Cancelled}} cancelled</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
function post(url) { send("POST", url); }
function put(url, body) { send("PUT", url, body); }
function send(method, url, body) {
  var opts = { method: method };
  if (body !== undefined) {
    opts.headers = { "Content-Type": "application/json" };
    opts.body = JSON.stringify(body);
  }
  fetch(url, opts).then(function() { setTimeout(function() { location.reload(); }, 300); });
}
var log = document.getElementById("log");
log.scrollTop = log.scrollHeight;
</script>
</body>
</html>
`

func renderHTML(w io.Writer, data pageData) error {
	return indexTmpl.Execute(w, data)
}
