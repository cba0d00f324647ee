package audit

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobmatch/internal/model"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// pickerChoices are the list filters offered; "" lists every record.
var pickerChoices = []model.Status{"", model.StatusPending, model.StatusFailed, model.StatusDone}

type pickerModel struct {
	counts map[model.Status]int
	cursor int
	chosen int // -1 = no choice yet, -2 = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.chosen = -2
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(pickerChoices)-1 {
				m.cursor++
			}
		case "enter":
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) label(st model.Status) string {
	if st == "" {
		total := 0
		for _, n := range m.counts {
			total += n
		}
		return fmt.Sprintf("all (%d)", total)
	}
	return fmt.Sprintf("%s (%d)", st, m.counts[st])
}

func (m pickerModel) View() string {
	s := pickerTitleStyle.Render("Job Queue · Select a status")
	s += "\n"

	for i, st := range pickerChoices {
		label := m.label(st)
		if i == m.cursor {
			s += pickerSelectedStyle.Render("> "+label) + "\n"
		} else {
			s += pickerItemStyle.Render(label) + "\n"
		}
	}

	s += pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit")
	return s
}

// RunStatusPicker shows an interactive status selector with per-status
// counts. ok is false when the user quit.
func RunStatusPicker(counts map[model.Status]int) (status model.Status, ok bool, err error) {
	m := pickerModel{counts: counts, chosen: -1}

	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return "", false, err
	}

	final := result.(pickerModel)
	if final.chosen < 0 {
		return "", false, nil
	}
	return pickerChoices[final.chosen], true, nil
}
