// Package report renders a self-contained HTML report for one analysis.
// The output embeds its own styling and needs no server-side assets, so it
// can be written to disk or streamed over HTTP as-is.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/session"
)

//go:embed report.tmpl
var templateFS embed.FS

var tmpl = template.Must(template.New("report.tmpl").Funcs(template.FuncMap{
	"bytes":    humanBytes,
	"millis":   humanMillis,
	"percent":  humanPercent,
	"ratio":    humanRatio,
	"unixMs":   unixMillis,
}).ParseFS(templateFS, "report.tmpl"))

// data is the template's root context.
type data struct {
	Entry       *session.Entry
	Result      *analysis.Result
	GeneratedAt time.Time
}

// Render writes the HTML report for one retained analysis.
func Render(w io.Writer, e *session.Entry) error {
	if err := tmpl.Execute(w, data{
		Entry:       e,
		Result:      e.Result,
		GeneratedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

func humanBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func humanMillis(ms int64) string {
	if ms == 0 {
		return "–"
	}
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%.1fh", d.Hours())
	case d >= time.Minute:
		return fmt.Sprintf("%.1fm", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dms", ms)
	}
}

func humanPercent(r analysis.Ratio) string {
	v, ok := r.Value()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

func humanRatio(r analysis.Ratio) string {
	v, ok := r.Value()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func unixMillis(ms int64) string {
	if ms == 0 {
		return "unknown"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
