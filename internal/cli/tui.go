package cli

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/solsrc"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// entryPickerModel is the bubbletea model for choosing the entry contract
// when a project has several files and no --entry flag was given.
type entryPickerModel struct {
	Files    []string
	Cursor   int
	Selected string
	Height   int
	Offset   int
}

func newEntryPickerModel(files []string) entryPickerModel {
	return entryPickerModel{
		Files:  files,
		Height: 15,
	}
}

func (m entryPickerModel) Init() tea.Cmd {
	return nil
}

func (m entryPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Files)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			m.Selected = m.Files[m.Cursor]
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 6
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m entryPickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Entry Contract"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Files) {
		end = len(m.Files)
	}

	for i := m.Offset; i < end; i++ {
		cursor := "  "
		style := listNormalStyle
		if i == m.Cursor {
			cursor = "▸ "
			style = listSelectedStyle
		}
		b.WriteString(cursor + style.Render(m.Files[i]) + "\n")
	}

	return b.String()
}

// pickEntryFile runs the interactive picker. A single-file project skips it.
func pickEntryFile(sources solsrc.Sources) (string, error) {
	files := sources.Keys()
	if len(files) == 1 {
		return files[0], nil
	}

	final, err := tea.NewProgram(newEntryPickerModel(files)).Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(entryPickerModel)
	if !ok || m.Selected == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "no entry contract selected")
	}
	return m.Selected, nil
}
