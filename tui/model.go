package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

// state represents the current phase of the command.
type state int

const (
	stateRestoring state = iota // checking the saved session, nothing else is shown
	stateReady                  // session known, idle
	stateWorking                // a request is in flight
	stateDone                   // command finished
	stateError                  // fatal error
)

// statusKind distinguishes line types in the status log.
type statusKind int

const (
	statusOK   statusKind = iota
	statusWarn            // warning / non-fatal
	statusInfo            // neutral info
)

// statusLine is one row in the scrolling status log.
type statusLine struct {
	kind statusKind
	text string
}

// Model is the BubbleTea model for the climate CLI.
type Model struct {
	state   state
	spinner spinner.Model
	width   int
	height  int

	apiURL   string
	username string
	working  string

	// globalErr is the banner fed by the global error channel.
	globalErr string
	formErr   string
	errMsg    string

	resultTitle string
	result      string

	// Scrolling status log shown below the main panel
	statusLines []statusLine
}

var (
	styleTitleBox = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 2)

	styleBanner = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold = lipgloss.NewStyle().Bold(true)
)

// NewModel creates the initial TUI model.
func NewModel() Model {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))),
	)
	return Model{
		state:   stateRestoring,
		spinner: s,
	}
}

// Init starts the spinner animation.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case MsgBanner:
		m.apiURL = msg.APIURL
		return m, nil

	case MsgRestoring:
		m.state = stateRestoring
		return m, nil

	case MsgRestored:
		m.username = msg.Username
		m.state = stateReady
		if msg.Username != "" {
			m.addStatus(statusOK, "Logged in as "+msg.Username)
		} else {
			m.addStatus(statusInfo, "Not logged in")
		}
		return m, nil

	case MsgAutoLoginFailed:
		m.addStatus(statusWarn, fmt.Sprintf("Could not resume saved session: %v", msg.Err))
		return m, nil

	case MsgWorking:
		m.working = msg.Label
		m.formErr = ""
		m.state = stateWorking
		return m, nil

	case MsgSignedIn:
		m.username = msg.Username
		m.formErr = ""
		m.state = stateReady
		m.addStatus(statusOK, "Welcome, "+msg.Username)
		return m, nil

	case MsgSignedOut:
		m.username = ""
		m.state = stateReady
		m.addStatus(statusOK, "Logged out")
		return m, nil

	case MsgFormError:
		m.formErr = msg.Err.Error()
		m.state = stateReady
		return m, nil

	case MsgAccessRejected:
		m.addStatus(statusWarn, "Session expired (401), refreshing...")
		return m, nil

	case MsgSessionRefreshed:
		m.addStatus(statusOK, "Session refreshed, retrying request...")
		return m, nil

	case MsgSessionExpired:
		m.username = ""
		m.addStatus(statusWarn, fmt.Sprintf("Session could not be refreshed: %v", msg.Err))
		return m, nil

	case MsgGlobalError:
		m.globalErr = msg.Text
		return m, nil

	case MsgLoginRequired:
		m.state = stateReady
		m.addStatus(statusWarn, "You must be logged in. Run: climate login")
		return m, nil

	case MsgResult:
		m.resultTitle = msg.Title
		m.result = msg.Body
		m.state = stateDone
		return m, nil

	case MsgFatal:
		m.errMsg = msg.Err.Error()
		m.state = stateError
		return m, nil
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() tea.View {
	return tea.NewView(m.render())
}

func (m Model) render() string {
	// nothing but the loader until the session is known
	if m.state == stateRestoring {
		return m.viewRestoring()
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())

	switch m.state {
	case stateWorking:
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.working + "...\n")
	case stateDone:
		if m.resultTitle != "" {
			b.WriteString(styleBold.Render(m.resultTitle))
			b.WriteString("\n")
		}
		b.WriteString(m.result)
		b.WriteString("\n")
	case stateError:
		b.WriteString(styleErr.Render("  ✗ " + m.errMsg))
		b.WriteString("\n")
	}

	if m.formErr != "" {
		b.WriteString(styleErr.Render("  " + m.formErr))
		b.WriteString("\n")
	}

	b.WriteString(m.viewStatusLog())
	return b.String()
}

func (m Model) viewRestoring() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" Checking saved session...\n")
	return b.String()
}

// viewHeader renders the title, the error banner and who is signed in.
func (m Model) viewHeader() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(styleTitleBox.Render("  Climate Data  "))
	b.WriteString("\n")

	if m.globalErr != "" {
		b.WriteString(styleBanner.Render("! " + m.globalErr))
		b.WriteString("\n")
	}

	if m.username != "" {
		b.WriteString(styleDim.Render("Signed in as " + m.username))
	} else {
		b.WriteString(styleDim.Render("Not signed in"))
	}
	if m.apiURL != "" {
		b.WriteString(styleDim.Render(" · " + m.apiURL))
	}
	b.WriteString("\n\n")
	return b.String()
}

// viewStatusLog renders the scrolling status log.
func (m Model) viewStatusLog() string {
	if len(m.statusLines) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	for _, line := range m.statusLines {
		switch line.kind {
		case statusOK:
			b.WriteString(styleOK.Render("  ✓ " + line.text))
		case statusWarn:
			b.WriteString(styleWarn.Render("  ⚠ " + line.text))
		default:
			b.WriteString(styleDim.Render("  · " + line.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// addStatus appends a line to the status log.
func (m *Model) addStatus(kind statusKind, text string) {
	m.statusLines = append(m.statusLines, statusLine{kind: kind, text: text})
}
