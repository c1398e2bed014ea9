package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/skordev/authline/internal/admin/app"
	"github.com/skordev/authline/internal/audit"
)

// auditModel browses the audit trail, newest record first.
type auditModel struct {
	app *app.App

	width  int
	height int

	Done bool

	list     list.Model
	err      error
	selected *auditRecord
}

type auditRecord struct {
	lines []string
}

// headline is the record's event type line, shown as the list entry title.
func (r auditRecord) headline() string {
	for _, line := range r.lines {
		if after, ok := strings.CutPrefix(line, "Type: "); ok {
			return after
		}
	}
	return "(malformed record)"
}

func (r auditRecord) timestamp() string {
	for _, line := range r.lines {
		if after, ok := strings.CutPrefix(line, "Timestamp: "); ok {
			return after
		}
	}
	return ""
}

type auditItem struct {
	record auditRecord
}

func (i auditItem) Title() string       { return i.record.headline() }
func (i auditItem) Description() string { return i.record.timestamp() }
func (i auditItem) FilterValue() string { return strings.Join(i.record.lines, " ") }

func newAuditModel(a *app.App) *auditModel {
	m := &auditModel{app: a}
	m.reload()
	return m
}

func (m *auditModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w, h-2)
}

func (m *auditModel) Update(msg tea.Msg) tea.Cmd {
	if m.err != nil {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			if msg.String() == "esc" || msg.String() == "q" || msg.String() == "enter" {
				m.Done = true
			}
		}
		return nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			if m.selected == nil {
				m.Done = true
				return nil
			}
		case "esc":
			if m.selected != nil {
				m.selected = nil
			} else {
				m.Done = true
			}
			return nil
		case "enter":
			if m.selected == nil {
				if it, ok := m.list.SelectedItem().(auditItem); ok {
					m.selected = &it.record
				}
				return nil
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return cmd
}

func (m *auditModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Audit log error: %v\n\nPress Enter/Esc to go back.", m.err)
	}

	if m.selected != nil {
		return titleStyle.Render("Audit record") + "\n\n" +
			strings.Join(m.selected.lines, "\n") +
			"\n\n(esc to go back)"
	}

	m.list.Title = "Audit Log"
	return m.list.View() + "\n(q to quit, enter for details)"
}

func (m *auditModel) reload() {
	records, err := readAuditRecords(m.app.Config.Paths.AuditLog)
	if err != nil {
		m.err = err
		return
	}

	// Newest first.
	items := make([]list.Item, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		items = append(items, auditItem{record: records[i]})
	}

	m.list = list.New(items, list.NewDefaultDelegate(), m.width, m.height-2)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(true)
	m.list.SetShowHelp(true)
	m.list.Title = "Audit Log"
}

// readAuditRecords parses the audit file back into records. Records are
// framed by the separator line; a leading separator opens a record, the next
// one closes it.
func readAuditRecords(path string) ([]auditRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var records []auditRecord
	var current []string
	inRecord := false

	for _, line := range strings.Split(string(data), "\n") {
		if line == audit.Separator {
			if inRecord {
				records = append(records, auditRecord{lines: current})
				current = nil
			}
			inRecord = !inRecord
			continue
		}
		if inRecord {
			current = append(current, line)
		}
	}

	return records, nil
}
