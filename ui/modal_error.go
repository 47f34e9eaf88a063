package ui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"oscar/session"
)

// ErrorModal is a standalone modal for errors raised before the console
// starts, such as an unreadable config file.
type ErrorModal struct {
	title   string
	message string
	width   int
	height  int
}

func NewErrorModal(title, message string) ErrorModal {
	return ErrorModal{
		title:   title,
		message: message,
	}
}

func (m ErrorModal) Init() tea.Cmd {
	return nil
}

func (m ErrorModal) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "ctrl+c":
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m ErrorModal) View() string {
	if m.width < 20 || m.height < 10 {
		return "Terminal too small"
	}
	return renderModal(m.title, dangerColor, m.message, "Press Enter to quit", m.width, m.height)
}

// errorState is an error surfaced inside the running console
type errorState struct {
	Title   string
	Message string
}

func newErrorState(err error) *errorState {
	title := "Error"
	var perm *session.PermissionError
	switch {
	case errors.As(err, &perm):
		title = "Microphone Unavailable"
	case errors.Is(err, session.ErrAlreadyActive):
		title = "Meeting In Progress"
	case errors.Is(err, session.ErrNotConnected):
		title = "No Meeting"
	}
	return &errorState{Title: title, Message: err.Error()}
}

func renderErrorModal(e *errorState, width, height int) string {
	return renderModal(e.Title, dangerColor, e.Message, FormatFooter("Enter", "Dismiss"), width, height)
}
