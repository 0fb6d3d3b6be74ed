package ui

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/scanparse"
	"github.com/hitushen/isitdown/internal/session"
)

var (
	TitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00CEC9"))
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6C5CE7")).Underline(true)

	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B894"))
	Warning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FD79A8"))
	Meta    = lipgloss.NewStyle().Foreground(lipgloss.Color("#636e72"))
)

// StateLabel 返回大写并着色的端口状态。
func StateLabel(state string) string {
	upper := strings.ToUpper(state)
	if strings.EqualFold(state, "open") {
		return Success.Render(upper)
	}
	return Warning.Render(upper)
}

// PrintRecords 以表格形式输出端口记录。
func PrintRecords(w io.Writer, host string, records []scanparse.PortRecord) {
	fmt.Fprintln(w, TitleStyle.Render("TARGET: "+host))
	if len(records) == 0 {
		fmt.Fprintln(w, "   (no open ports found)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, HeaderStyle.Render("PORT\tPROTO\tSTATE\tSERVICE\tLABEL"))
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			strconv.Itoa(r.Port),
			r.Proto,
			StateLabel(r.State),
			r.Service,
			Meta.Render(scanparse.Abbreviate(r.Service)),
		)
	}
	tw.Flush()
}

// PrintSnapshot 输出流式会话的最终结果。
func PrintSnapshot(w io.Writer, snap session.Snapshot) {
	PrintRecords(w, snap.Host, snap.Records)
	switch snap.Status {
	case session.StatusCompleted:
		code := 0
		if snap.Done != nil {
			code = snap.Done.ReturnCode
		}
		fmt.Fprintln(w, Success.Render(fmt.Sprintf("scan completed (exit %d)", code)))
		if snap.Done != nil && strings.TrimSpace(snap.Done.Stderr) != "" {
			fmt.Fprintln(w, Meta.Render(strings.TrimSpace(snap.Done.Stderr)))
		}
	case session.StatusFailed:
		fmt.Fprintln(w, Warning.Render("scan failed: "+snap.Message))
	default:
		fmt.Fprintln(w, Meta.Render("scan "+snap.Status.String()))
	}
}

// PrintHTTP 输出 HTTP 检查结果，响应头按名称排序。
func PrintHTTP(w io.Writer, url string, resp *models.HTTPCheckResponse) {
	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		status = Success.Render(status)
	} else {
		status = Warning.Render(status)
	}
	fmt.Fprintf(w, "%s %s\n", TitleStyle.Render(url), status)

	names := make([]string, 0, len(resp.Headers))
	for k := range resp.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(w, "%s %s\n", Meta.Render(k+":"), resp.Headers[k])
	}
	if resp.Body != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, resp.Body)
	}
}

// PrintPort 输出单个端口的探测结果。
func PrintPort(w io.Writer, host string, port int, resp *models.PortCheckResponse) {
	target := TitleStyle.Render(fmt.Sprintf("%s:%d", host, port))
	if resp.Open {
		latency := ""
		if resp.LatencyMS != nil {
			latency = Meta.Render(fmt.Sprintf(" (%.1f ms)", *resp.LatencyMS))
		}
		fmt.Fprintf(w, "%s %s%s\n", target, Success.Render("OPEN"), latency)
		return
	}
	reason := ""
	if resp.Error != "" {
		reason = Meta.Render(" (" + resp.Error + ")")
	}
	fmt.Fprintf(w, "%s %s%s\n", target, Warning.Render("CLOSED"), reason)
}

// PrintStatuses 输出外部监控服务的状态列表。
func PrintStatuses(w io.Writer, statuses []models.ServiceStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, HeaderStyle.Render("SERVICE\tSTATUS\tUPTIME\tAVG RESPONSE\tCHECKED"))
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%.2f%%\t%.0f ms\t%s\n",
			s.Service,
			upLabel(s.IsUp),
			s.UptimePercentage,
			s.AvgResponseTime,
			Meta.Render(s.Timestamp),
		)
	}
	tw.Flush()
}

// PrintHistory 输出服务的逐小时停机统计。
func PrintHistory(w io.Writer, h *models.ServiceHistory) {
	fmt.Fprintf(w, "%s %s %s\n",
		TitleStyle.Render(h.Service),
		upLabel(h.IsUp),
		Meta.Render(fmt.Sprintf("uptime %.2f%%", h.UptimePercentage)),
	)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, HeaderStyle.Render("HOUR\tDOWNTIME\tAVG RESPONSE\t"))
	for _, p := range h.Hourly {
		label := p.HourDisplay
		if label == "" {
			label = p.Hour
		}
		fmt.Fprintf(tw, "%s\t%.0f min\t%.0f ms\t%s\n", label, p.DowntimeMinutes, p.AvgResponseTime, DowntimeBar(p.DowntimeMinutes))
	}
	tw.Flush()
}

// DowntimeBar 将一小时内的停机分钟数画成长度不超过 12 的条形。
func DowntimeBar(minutes float64) string {
	if minutes <= 0 {
		return ""
	}
	n := int(minutes/5 + 0.5)
	if n < 1 {
		n = 1
	}
	if n > 12 {
		n = 12
	}
	return Warning.Render(strings.Repeat("█", n))
}

func upLabel(up bool) string {
	if up {
		return Success.Render("UP")
	}
	return Warning.Render("DOWN")
}
