package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hitushen/isitdown/internal/scanparse"
	"github.com/hitushen/isitdown/internal/session"
	"github.com/hitushen/isitdown/internal/ui"
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)

// SnapshotMsg 携带会话的最新快照。
type SnapshotMsg session.Snapshot

// Model 实时展示一次流式扫描。
type Model struct {
	host     string
	spinner  spinner.Model
	table    table.Model
	snap     session.Snapshot
	cancel   func()
	quitting bool
}

// NewModel 创建实时视图。cancel 在用户退出时调用，用于终止会话。
func NewModel(host string, cancel func()) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.Success

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "PORT", Width: 8},
			{Title: "STATE", Width: 10},
			{Title: "SERVICE", Width: 18},
			{Title: "LABEL", Width: 6},
		}),
		table.WithHeight(12),
	)
	return Model{host: host, spinner: sp, table: t, cancel: cancel}
}

func (m Model) Init() tea.Cmd { return m.spinner.Tick }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case SnapshotMsg:
		m.snap = session.Snapshot(msg)
		m.table.SetRows(Rows(m.snap.Records))
		if m.snap.Status.Terminal() {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(ui.TitleStyle.Render("isitdown: " + m.host))
	b.WriteString("\n\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	if !m.snap.Status.Terminal() && !m.quitting {
		b.WriteString(ui.Meta.Render("q to cancel"))
	}
	return docStyle.Render(b.String())
}

func (m Model) statusLine() string {
	switch m.snap.Status {
	case session.StatusCompleted:
		return ui.Success.Render(fmt.Sprintf("completed: %d ports", len(m.snap.Records)))
	case session.StatusFailed:
		return ui.Warning.Render("failed: " + m.snap.Message)
	case session.StatusRunning:
		return fmt.Sprintf("%s scanning... %d lines, %s ports", m.spinner.View(), m.snap.Lines, Progress(m.snap))
	default:
		return m.spinner.View() + " connecting..."
	}
}

// Snapshot 返回最近一次收到的快照。
func (m Model) Snapshot() session.Snapshot { return m.snap }

// Rows 将端口记录转换为表格行。
func Rows(records []scanparse.PortRecord) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, table.Row{
			r.Key(),
			strings.ToUpper(r.State),
			r.Service,
			scanparse.Abbreviate(r.Service),
		})
	}
	return rows
}

// Progress 以 "n/total" 形式描述已发现端口数与扫描范围。
func Progress(snap session.Snapshot) string {
	return strconv.Itoa(len(snap.Records)) + "/" + strconv.Itoa(snap.PortCount)
}
