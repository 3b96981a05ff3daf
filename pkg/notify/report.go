package notify

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

func errorBody(report ErrorReport) string {
	var b strings.Builder
	b.WriteString(`<html><body style="font-family: Arial, sans-serif;">`)
	b.WriteString(`<h2 style="color: #d32f2f;">Lead Bot Error</h2>`)
	b.WriteString(`<div style="background: #f5f5f5; padding: 15px; border-radius: 5px;">`)
	fmt.Fprintf(&b, "<p><strong>Time:</strong> %s</p>", report.Time.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "<p><strong>Bot:</strong> %s</p>", html.EscapeString(report.Bot))
	if report.LeadName != "" {
		fmt.Fprintf(&b, "<p><strong>Lead:</strong> %s</p>", html.EscapeString(report.LeadName))
		fmt.Fprintf(&b, "<p><strong>Phone:</strong> %s</p>", html.EscapeString(report.Phone))
		fmt.Fprintf(&b, "<p><strong>Program:</strong> %s</p>", html.EscapeString(report.Program))
	}
	b.WriteString("</div>")
	if report.Err != nil {
		b.WriteString(`<h3 style="color: #666;">Error Details:</h3>`)
		fmt.Fprintf(&b, `<pre style="background: #f4f4f4; padding: 15px; border-left: 4px solid #d32f2f;">%s</pre>`,
			html.EscapeString(report.Err.Error()))
	}
	if len(report.Screenshot) > 0 {
		b.WriteString(`<h3 style="color: #666;">Screenshot:</h3>`)
		b.WriteString(`<img src="cid:screenshot" style="max-width: 800px; border: 1px solid #ccc;"/>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func reportBody(day time.Time, stats []store.StatusCount) string {
	total := 0
	sent := 0
	byCampus := map[string][]store.StatusCount{}
	for _, sc := range stats {
		total += sc.Count
		if sc.Status == store.StatusSent {
			sent += sc.Count
		}
		byCampus[sc.Campus] = append(byCampus[sc.Campus], sc)
	}

	rate := 0.0
	if total > 0 {
		rate = float64(sent) / float64(total) * 100
	}

	var b strings.Builder
	b.WriteString(`<html><body style="font-family: Arial, sans-serif;">`)
	fmt.Fprintf(&b, `<h2 style="color: #1976d2;">Daily Lead Report - %s</h2>`, day.Format("2006-01-02"))
	fmt.Fprintf(&b, "<p><strong>Total attempts:</strong> %d | <strong>Sent:</strong> %d | <strong>Success rate:</strong> %.1f%%</p>",
		total, sent, rate)

	if total == 0 {
		b.WriteString("<p>No delivery activity recorded today.</p></body></html>")
		return b.String()
	}

	campuses := make([]string, 0, len(byCampus))
	for c := range byCampus {
		campuses = append(campuses, c)
	}
	sort.Strings(campuses)

	b.WriteString(`<table border="1" cellpadding="6" cellspacing="0" style="border-collapse: collapse;">`)
	b.WriteString("<tr style=\"background: #e3f2fd;\"><th>Campus</th><th>Status</th><th>Count</th></tr>")
	for _, campus := range campuses {
		rows := byCampus[campus]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Status < rows[j].Status })
		for _, sc := range rows {
			color := "#ffebee"
			if sc.Status == store.StatusSent {
				color = "#e8f5e9"
			}
			fmt.Fprintf(&b, `<tr style="background: %s;"><td>%s</td><td>%s</td><td>%d</td></tr>`,
				color, html.EscapeString(campus), sc.Status, sc.Count)
		}
	}
	b.WriteString("</table></body></html>")
	return b.String()
}
