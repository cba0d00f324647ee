// Package audit is the interactive terminal browser for the job queue.
package audit

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobmatch/internal/model"
)

// Lines per record in the list view (title + subtitle + blank separator).
const recordItemHeight = 3

const timeLayout = "2006-01-02 15:04 MST"

// Requeuer resets a record to pending.
type Requeuer interface {
	Requeue(ctx context.Context, id string) error
}

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Width(14)

	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				MarginBottom(1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	statusColors = map[model.Status]lipgloss.Color{
		model.StatusPending: lipgloss.Color("214"),
		model.StatusDone:    lipgloss.Color("42"),
		model.StatusFailed:  lipgloss.Color("196"),
	}
)

// requeuedMsg is sent when an async requeue completes.
type requeuedMsg struct {
	id  string
	err error
}

type browserModel struct {
	records  []model.QueueRecord
	label    string
	cursor   int
	width    int
	height   int
	ready    bool
	list     viewport.Model
	requeuer Requeuer
	now      func() time.Time

	// Detail view state
	view            viewState
	detail          viewport.Model
	showDescription bool
	notice          string
	errText         string

	wantQuit bool
}

func newBrowserModel(records []model.QueueRecord, label string, requeuer Requeuer) browserModel {
	return browserModel{
		records:  records,
		label:    label,
		requeuer: requeuer,
		now:      time.Now,
	}
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detail.Width = m.width - 4
			m.detail.Height = m.height - 4
			m.detail.SetContent(m.renderDetail())
		}
		return m, nil

	case requeuedMsg:
		if msg.err != nil {
			m.errText = fmt.Sprintf("requeue failed: %v", msg.err)
			m.notice = ""
		} else {
			m.errText = ""
			m.notice = "requeued, the next queue run will pick it up"
			m.markPending(msg.id)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		m.wantQuit = false
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
		return m, nil
	case "down", "j":
		m.moveCursor(1)
		return m, nil
	case "enter":
		return m.openDetailView()
	case "r":
		return m.requeueSelected()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		m.notice, m.errText = "", ""
		return m, nil
	case "o":
		if rec, ok := m.selected(); ok {
			openURL(rec.URL)
		}
		return m, nil
	case "d":
		m.showDescription = !m.showDescription
		m.detail.SetContent(m.renderDetail())
		m.detail.SetYOffset(0)
		return m, nil
	case "r":
		return m.requeueSelected()
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// requeueSelected resets the selected record unless it is already pending.
func (m browserModel) requeueSelected() (tea.Model, tea.Cmd) {
	rec, ok := m.selected()
	if !ok || m.requeuer == nil {
		return m, nil
	}
	if rec.Status == model.StatusPending {
		m.notice = "already pending"
		m.refresh()
		return m, nil
	}
	requeuer := m.requeuer
	id := rec.ID
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return requeuedMsg{id: id, err: requeuer.Requeue(ctx, id)}
	}
}

func (m *browserModel) markPending(id string) {
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = model.StatusPending
			m.records[i].LastError = ""
			m.records[i].UpdatedAt = m.now()
			return
		}
	}
}

func (m browserModel) selected() (model.QueueRecord, bool) {
	if len(m.records) == 0 {
		return model.QueueRecord{}, false
	}
	return m.records[m.cursor], true
}

func (m *browserModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.records)-1, 0))
	m.list.SetContent(renderRecords(m.records, m.cursor))

	cursorTop := m.cursor * recordItemHeight
	cursorBottom := cursorTop + recordItemHeight - 1
	if cursorTop < m.list.YOffset {
		m.list.SetYOffset(cursorTop)
	} else if cursorBottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(cursorBottom - m.list.Height + 1)
	}
}

func (m browserModel) openDetailView() (tea.Model, tea.Cmd) {
	if _, ok := m.selected(); !ok {
		return m, nil
	}
	m.view = viewDetail
	m.showDescription = false
	m.notice, m.errText = "", ""
	m.detail = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
	m.detail.SetContent(m.renderDetail())
	return m, nil
}

func (m *browserModel) recalcLayout() {
	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	width := max(m.width-4, 20)
	height := max(m.height-4, 5)

	if !m.ready {
		m.list = viewport.New(width, height)
		m.ready = true
	} else {
		m.list.Width = width
		m.list.Height = height
	}
	m.list.SetContent(renderRecords(m.records, m.cursor))
}

func (m *browserModel) refresh() {
	if m.ready {
		m.list.SetContent(renderRecords(m.records, m.cursor))
	}
	if m.view == viewDetail {
		m.detail.SetContent(m.renderDetail())
	}
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browserModel) viewList() string {
	header := headerStyle.Render(fmt.Sprintf("Queue · %s (%d)", m.label, len(m.records)))
	pane := borderStyle.Width(m.list.Width).Render(m.list.View())

	statusText := " ↑/↓ cursor  enter detail  r requeue  esc back  q quit"
	if m.notice != "" {
		statusText = " " + m.notice + "   " + statusText
	}
	if m.errText != "" {
		statusText = " " + m.errText + "   " + statusText
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return header + "\n" + pane + "\n" + statusBar
}

func (m browserModel) viewDetail() string {
	title := detailTitleStyle.Render("Queued Job")
	content := borderStyle.Width(m.width - 2).Render(m.detail.View())
	statusBar := statusBarStyle.Width(m.width).Render(" o open URL  d description  r requeue  esc/backspace back  ↑/↓ scroll  q quit")
	return title + "\n" + content + "\n" + statusBar
}

func (m browserModel) renderDetail() string {
	rec, ok := m.selected()
	if !ok {
		return ""
	}
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	addField("Title", rec.Title)
	addField("Company", rec.Company)
	addField("Status", renderStatus(rec.Status))
	addField("ID", rec.ID)
	addField("URL", rec.URL)

	b.WriteByte('\n')
	addField("Queued", rec.CreatedAt.Local().Format(timeLayout))
	addField("Updated", rec.UpdatedAt.Local().Format(timeLayout))
	addField("Age", humanAge(m.now().Sub(rec.CreatedAt)))

	wrapWidth := max(m.width-8, 20)
	divider := func(label string) string {
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		return dividerStyle.Render(label + fill)
	}

	if rec.LastError != "" {
		b.WriteByte('\n')
		b.WriteString(divider("── Last Error ") + "\n\n")
		b.WriteString(errorStyle.Render(wordWrap(rec.LastError, wrapWidth)) + "\n")
	}

	if m.notice != "" {
		b.WriteByte('\n')
		b.WriteString(noticeStyle.Render("✓ "+m.notice) + "\n")
	}
	if m.errText != "" {
		b.WriteByte('\n')
		b.WriteString(errorStyle.Render("⚠ "+m.errText) + "\n")
	}

	b.WriteByte('\n')
	if m.showDescription {
		b.WriteString(divider("── Description ") + "\n\n")
		b.WriteString(bodyStyle.Render(wordWrap(rec.Description, wrapWidth)) + "\n")
	} else {
		b.WriteString(hintStyle.Render("  press d to read the description") + "\n")
	}

	return b.String()
}

func renderStatus(st model.Status) string {
	c, ok := statusColors[st]
	if !ok {
		return string(st)
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(string(st))
}

func renderRecords(records []model.QueueRecord, cursor int) string {
	if len(records) == 0 {
		return "  (queue is empty)"
	}

	var b strings.Builder
	for i, rec := range records {
		titleSt, subtitleSt, prefix := titleStyle, subtitleStyle, "  "
		if i == cursor {
			titleSt, subtitleSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		b.WriteString(prefix)
		b.WriteString(titleSt.Render(rec.Title))
		b.WriteByte('\n')

		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %s · %s", rec.Company, rec.Status, rec.CreatedAt.Local().Format("2006-01-02"))))
		b.WriteByte('\n')

		if i < len(records)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func wordWrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) <= width {
			line += " " + w
		} else {
			lines = append(lines, line)
			line = w
		}
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunBrowser launches the full-screen queue browser over records. label
// names the status filter in the header. Returns wantQuit=true if the user
// pressed q/ctrl+c, false if they pressed esc to return to the picker.
func RunBrowser(records []model.QueueRecord, label string, requeuer Requeuer) (bool, error) {
	p := tea.NewProgram(newBrowserModel(records, label, requeuer), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(browserModel).wantQuit, nil
}
