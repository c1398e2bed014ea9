package ui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/skordev/authline/internal/admin/app"
	"github.com/skordev/authline/internal/store"
	"github.com/skordev/authline/internal/user"
)

type usersModel struct {
	app *app.App

	width  int
	height int

	Done bool

	state usersState

	list list.Model
	err  error

	selected *user.User

	form *huh.Form

	createUsername  string
	createPassword  string
	createFirstName string
	createLastName  string
	createEmail     string
	createSave      bool

	editFirstName string
	editLastName  string
	editEmail     string
	editSave      bool

	newPassword string
	pwConfirm   string
	pwSave      bool

	roleConfirm   bool
	deleteConfirm bool
}

type usersState int

const (
	usersStateList usersState = iota
	usersStateDetail
	usersStateCreate
	usersStateEditProfile
	usersStateResetPassword
	usersStateSetRole
	usersStateDelete
)

type userItem struct {
	username string
	title    string
	desc     string
	kind     string
}

func (i userItem) Title() string       { return i.title }
func (i userItem) Description() string { return i.desc }
func (i userItem) FilterValue() string { return i.title }

func newUsersModel(a *app.App) *usersModel {
	m := &usersModel{app: a, state: usersStateList}
	m.reloadList()
	return m
}

func (m *usersModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w, h-2)
}

func (m *usersModel) Update(msg tea.Msg) tea.Cmd {
	if m.err != nil {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			if msg.String() == "esc" || msg.String() == "q" || msg.String() == "enter" {
				m.err = nil
				m.state = usersStateList
				m.form = nil
				m.selected = nil
				m.reloadList()
			}
		}
		return nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			if m.state == usersStateList {
				m.Done = true
				return nil
			}
		case "esc":
			m.back()
			return nil
		}
	}

	switch m.state {
	case usersStateList:
		return m.updateList(msg)
	case usersStateDetail:
		return m.updateDetail(msg)
	case usersStateCreate, usersStateEditProfile, usersStateResetPassword, usersStateSetRole, usersStateDelete:
		return m.updateForm(msg)
	default:
		return nil
	}
}

func (m *usersModel) updateList(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			it, ok := m.list.SelectedItem().(userItem)
			if !ok {
				return cmd
			}
			if it.kind == "create" {
				m.startCreate()
				return nil
			}

			u, err := m.app.Users.Extract(it.username)
			if err != nil {
				m.err = err
				return nil
			}
			m.selected = &u
			m.state = usersStateDetail
			m.list = newActionList(m.width, m.height, u.IsAdmin())
			return nil
		}
	}

	return cmd
}

func (m *usersModel) updateDetail(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "enter" {
			it, ok := m.list.SelectedItem().(userItem)
			if !ok {
				return cmd
			}
			switch it.kind {
			case "edit_profile":
				m.startEditProfile()
			case "set_role":
				m.startSetRole()
			case "reset_password":
				m.startResetPassword()
			case "delete":
				m.startDelete()
			case "back":
				m.back()
			}
			return nil
		}
	}

	return cmd
}

func (m *usersModel) updateForm(msg tea.Msg) tea.Cmd {
	if m.form == nil {
		m.err = fmt.Errorf("internal error: form not initialized")
		return nil
	}
	var cmd tea.Cmd
	updated, cmd := m.form.Update(msg)
	f, ok := updated.(*huh.Form)
	if !ok {
		m.err = fmt.Errorf("internal error: unexpected form model type")
		return nil
	}
	m.form = f
	if m.form.State == huh.StateCompleted {
		switch m.state {
		case usersStateCreate:
			if m.createSave {
				u := user.User{
					Account: user.Account{Username: m.createUsername, Password: m.createPassword},
					Profile: user.Profile{FirstName: m.createFirstName, LastName: m.createLastName, Email: m.createEmail},
					Role:    user.RoleRegular,
				}
				if err := m.app.Users.Add(u); err != nil {
					m.err = err
					return nil
				}
			}
			m.form = nil
			m.state = usersStateList
			m.reloadList()
		case usersStateEditProfile:
			if m.editSave && m.selected != nil {
				ch := store.Changes{
					store.FieldFirstName: m.editFirstName,
					store.FieldLastName:  m.editLastName,
					store.FieldEmail:     m.editEmail,
				}
				if _, err := m.app.Users.Update(m.selected.Username, ch); err != nil {
					m.err = err
					return nil
				}
			}
			m.refreshSelected()
			m.form = nil
			m.state = usersStateDetail
			m.list = newActionList(m.width, m.height, m.selected != nil && m.selected.IsAdmin())
		case usersStateResetPassword:
			if m.pwSave && m.selected != nil {
				ch := store.Changes{store.FieldPassword: m.newPassword}
				if _, err := m.app.Users.Update(m.selected.Username, ch); err != nil {
					m.err = err
					return nil
				}
			}
			m.form = nil
			m.state = usersStateDetail
			m.list = newActionList(m.width, m.height, m.selected != nil && m.selected.IsAdmin())
		case usersStateSetRole:
			if m.roleConfirm && m.selected != nil {
				newRole := user.RoleAdmin
				if m.selected.IsAdmin() {
					newRole = user.RoleRegular
				}
				if err := m.app.Users.SetRole(m.selected.Username, newRole); err != nil {
					if errors.Is(err, store.ErrLastAdmin) {
						m.err = fmt.Errorf("cannot demote %s: the system needs at least one admin", m.selected.Username)
					} else {
						m.err = err
					}
					return nil
				}
			}
			m.refreshSelected()
			m.form = nil
			m.state = usersStateDetail
			m.list = newActionList(m.width, m.height, m.selected != nil && m.selected.IsAdmin())
		case usersStateDelete:
			if m.deleteConfirm && m.selected != nil {
				if err := m.app.Users.Remove(m.selected.Username); err != nil {
					if errors.Is(err, store.ErrLastAdmin) {
						m.err = fmt.Errorf("cannot delete %s: the system needs at least one admin", m.selected.Username)
					} else {
						m.err = err
					}
					return nil
				}
				m.selected = nil
				m.form = nil
				m.state = usersStateList
				m.reloadList()
				return nil
			}
			m.form = nil
			m.state = usersStateDetail
			m.list = newActionList(m.width, m.height, m.selected != nil && m.selected.IsAdmin())
		}
		return nil
	}
	return cmd
}

func (m *usersModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Users error: %v\n\nPress Enter/Esc to go back.", m.err)
	}

	switch m.state {
	case usersStateList:
		m.list.Title = "Users"
		return m.list.View() + "\n(q to quit, enter to select)"
	case usersStateDetail:
		if m.selected == nil {
			return "No user selected\n\n(esc to go back)"
		}
		header := fmt.Sprintf("User: %s (%s)\n", m.selected.Username, m.selected.Role)
		meta := fmt.Sprintf("First name: %s\nLast name: %s\nEmail: %s\n\n",
			m.selected.FirstName, m.selected.LastName, m.selected.Email,
		)
		m.list.Title = "Actions"
		return header + meta + m.list.View() + "\n(esc to go back)"
	default:
		return m.form.View() + "\n\n(esc to go back)"
	}
}

func (m *usersModel) reloadList() {
	users, err := m.app.Users.List()
	if err != nil {
		m.err = err
		return
	}

	items := make([]list.Item, 0, len(users)+1)
	items = append(items, userItem{title: "+ Create new user", desc: "Add a new account", kind: "create"})
	for _, u := range users {
		desc := fmt.Sprintf("%s • %s", u.Role, u.Email)
		items = append(items, userItem{username: u.Username, title: u.Username, desc: desc, kind: "user"})
	}

	m.list = list.New(items, list.NewDefaultDelegate(), m.width, m.height-2)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(true)
	m.list.SetShowHelp(true)
	m.list.Title = "Users"
}

func newActionList(w, h int, isAdmin bool) list.Model {
	roleTitle := "Grant admin"
	roleDesc := "Promote this account to admin"
	if isAdmin {
		roleTitle = "Revoke admin"
		roleDesc = "Demote this account to regular"
	}

	items := []list.Item{
		userItem{title: "Edit profile", desc: "First name, last name, email", kind: "edit_profile"},
		userItem{title: roleTitle, desc: roleDesc, kind: "set_role"},
		userItem{title: "Reset password", desc: "Set a new password", kind: "reset_password"},
		userItem{title: "Delete user", desc: "Remove the account permanently", kind: "delete"},
		userItem{title: "Back", desc: "Return to users list", kind: "back"},
	}
	l := list.New(items, list.NewDefaultDelegate(), w, h-8)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)
	return l
}

func (m *usersModel) startCreate() {
	m.state = usersStateCreate
	m.createUsername = ""
	m.createPassword = ""
	m.createFirstName = ""
	m.createLastName = ""
	m.createEmail = ""
	m.createSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&m.createUsername).Validate(nonEmpty("username")),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&m.createPassword).Validate(nonEmpty("password")),
			huh.NewInput().Title("First name").Value(&m.createFirstName),
			huh.NewInput().Title("Last name").Value(&m.createLastName),
			huh.NewInput().Title("Email").Value(&m.createEmail),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Create user?").Value(&m.createSave),
		),
	)
}

func (m *usersModel) startEditProfile() {
	m.state = usersStateEditProfile
	m.editFirstName = m.selected.FirstName
	m.editLastName = m.selected.LastName
	m.editEmail = m.selected.Email
	m.editSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("First name").Value(&m.editFirstName),
			huh.NewInput().Title("Last name").Value(&m.editLastName),
			huh.NewInput().Title("Email").Value(&m.editEmail),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Save changes?").Value(&m.editSave),
		),
	)
}

func (m *usersModel) startResetPassword() {
	m.state = usersStateResetPassword
	m.newPassword = ""
	m.pwConfirm = ""
	m.pwSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).Value(&m.newPassword).Validate(nonEmpty("password")),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&m.pwConfirm).Validate(func(s string) error {
				if s != m.newPassword {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Reset password?").Value(&m.pwSave),
		),
	)
}

func (m *usersModel) startSetRole() {
	m.state = usersStateSetRole
	m.roleConfirm = true

	title := fmt.Sprintf("Grant admin to %s?", m.selected.Username)
	if m.selected.IsAdmin() {
		title = fmt.Sprintf("Revoke admin from %s?", m.selected.Username)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().Title(title).Value(&m.roleConfirm),
		),
	)
}

func (m *usersModel) startDelete() {
	m.state = usersStateDelete
	m.deleteConfirm = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %s permanently?", m.selected.Username)).
				Value(&m.deleteConfirm),
		),
	)
}

func (m *usersModel) back() {
	switch m.state {
	case usersStateList:
		m.Done = true
	case usersStateDetail:
		m.state = usersStateList
		m.selected = nil
		m.form = nil
		m.reloadList()
	default:
		m.state = usersStateDetail
		m.form = nil
		m.list = newActionList(m.width, m.height, m.selected != nil && m.selected.IsAdmin())
	}
}

func (m *usersModel) refreshSelected() {
	if m.selected == nil {
		return
	}
	u, err := m.app.Users.Extract(m.selected.Username)
	if err == nil {
		m.selected = &u
	}
}
