package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestEntryPicker_Navigation(t *testing.T) {
	m := newEntryPickerModel([]string{"A.sol", "B.sol", "C.sol"})

	next, _ := m.Update(keyMsg("down"))
	m = next.(entryPickerModel)
	next, _ = m.Update(keyMsg("down"))
	m = next.(entryPickerModel)
	if m.Cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.Cursor)
	}

	// Down at the bottom stays put.
	next, _ = m.Update(keyMsg("down"))
	m = next.(entryPickerModel)
	if m.Cursor != 2 {
		t.Errorf("cursor = %d, want 2 at list end", m.Cursor)
	}

	next, _ = m.Update(keyMsg("up"))
	m = next.(entryPickerModel)
	if m.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.Cursor)
	}

	next, _ = m.Update(keyMsg("enter"))
	m = next.(entryPickerModel)
	if m.Selected != "B.sol" {
		t.Errorf("selected = %q, want B.sol", m.Selected)
	}
}

func TestEntryPicker_QuitWithoutSelection(t *testing.T) {
	m := newEntryPickerModel([]string{"A.sol", "B.sol"})
	next, cmd := m.Update(keyMsg("esc"))
	m = next.(entryPickerModel)
	if m.Selected != "" {
		t.Errorf("selected = %q, want empty after quit", m.Selected)
	}
	if cmd == nil {
		t.Error("esc should produce a quit command")
	}
}

func TestEntryPicker_View(t *testing.T) {
	m := newEntryPickerModel([]string{"contracts/Main.sol", "contracts/Token.sol"})
	view := m.View()
	for _, want := range []string{"Select Entry Contract", "contracts/Main.sol", "contracts/Token.sol"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
