package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// State represents the current state of the TUI
type State int

const (
	StateInput State = iota
	StateTransforming
	StatePlotting
)

// InputMode selects which instruction the input box submits
type InputMode int

const (
	ModeData InputMode = iota
	ModePlot
)

func (m InputMode) String() string {
	if m == ModePlot {
		return "plot"
	}
	return "data"
}

// Styles for the TUI
type Styles struct {
	Prompt  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Accent  lipgloss.Style
	Dim     lipgloss.Style
	Title   lipgloss.Style
}

// NewStyles derives the TUI styles from a theme
func NewStyles(theme *Theme) *Styles {
	fg := func(role string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(theme.Color(role))
	}
	return &Styles{
		Prompt:  fg("prompt"),
		Success: fg("success"),
		Error:   fg("error"),
		Warning: fg("warning"),
		Info:    fg("info"),
		Accent:  fg("accent"),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Title:   fg("accent").Bold(true),
	}
}

// notification is one line of the notification log
type notification struct {
	level   NotifyLevel
	message string
}

// Model is the bubbletea model for datapilot
type Model struct {
	textarea textarea.Model
	spinner  spinner.Model
	styles   *Styles
	theme    *Theme

	state     State
	mode      InputMode
	startTime time.Time
	showOrig  bool

	notes []notification

	// Exit confirmation
	ctrlCPressed bool
	ctrlCTime    time.Time

	session *Session
	config  *Config

	// View renders from these copies, updated when an operation finishes
	providerName string
	original     *Frame
	working      *Frame
	chart        string

	// For async operations
	ctx      context.Context
	cancelFn context.CancelFunc

	width  int
	height int
}

// Messages for async operations
type dataDoneMsg struct {
	frame *Frame
	err   error
}

type plotDoneMsg struct {
	markup string
	err    error
}

type notifyMsg notification

// NewModel creates a new bubbletea model over a session
func NewModel(session *Session, cfg *Config) Model {
	ta := textarea.New()
	ta.Placeholder = "Describe a change to the data (Tab switches to plot)"
	ta.Focus()
	ta.CharLimit = 0
	ta.SetWidth(100)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)

	s := spinner.New()
	s.Spinner = spinner.Dot

	theme := NewTheme(&ThemeSettings{Name: cfg.Theme})
	return Model{
		textarea: ta,
		spinner:  s,
		styles:   NewStyles(theme),
		theme:    theme,
		state:    StateInput,
		mode:     ModeData,
		session:  session,
		config:   cfg,
		ctx:      context.Background(),

		providerName: session.ProviderName(),
		original:     session.Original(),
		working:      session.Working(),
		chart:        session.Chart(),

		width:    120,
		height:   30,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(max(msg.Width-12, 20))
		return m, nil

	case tea.KeyMsg:
		if msg.Type != tea.KeyCtrlC {
			m.ctrlCPressed = false
		}

		switch msg.Type {
		case tea.KeyCtrlC:
			// Double Ctrl+C to quit
			if m.ctrlCPressed && time.Since(m.ctrlCTime) < 2*time.Second {
				if m.cancelFn != nil {
					m.cancelFn()
				}
				return m, tea.Quit
			}
			m.ctrlCPressed = true
			m.ctrlCTime = time.Now()
			m.addNote(NotifyInfo, "Press Ctrl+C again to quit")
			return m, nil

		case tea.KeyEsc:
			if m.state != StateInput && m.cancelFn != nil {
				m.cancelFn()
				m.addNote(NotifyWarning, "Cancelling...")
			}
			return m, nil
		}

		if m.state != StateInput {
			// One operation at a time
			return m, nil
		}

		switch msg.Type {
		case tea.KeyTab:
			if m.mode == ModeData {
				m.mode = ModePlot
				m.textarea.Placeholder = "Describe a chart (Tab switches to data)"
			} else {
				m.mode = ModeData
				m.textarea.Placeholder = "Describe a change to the data (Tab switches to plot)"
			}
			return m, nil

		case tea.KeyCtrlR:
			m.working = m.session.Reset()
			m.chart = ""
			m.addNote(NotifyInfo, "Data reset")
			return m, nil

		case tea.KeyCtrlO:
			m.showOrig = !m.showOrig
			return m, nil

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			return m.startOperation(input)
		}

	case dataDoneMsg:
		m.finishOperation(msg.err)
		if msg.err == nil {
			m.working = msg.frame
		}
		return m, nil

	case plotDoneMsg:
		m.finishOperation(msg.err)
		if msg.err == nil {
			m.chart = msg.markup
		}
		return m, nil

	case notifyMsg:
		m.addNote(msg.level, msg.message)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) startOperation(input string) (tea.Model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelFn = cancel
	m.startTime = time.Now()

	session := m.session
	if m.mode == ModePlot {
		m.state = StatePlotting
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			markup, err := session.ApplyPlotInstruction(ctx, input)
			return plotDoneMsg{markup: markup, err: err}
		})
	}

	m.state = StateTransforming
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		f, err := session.ApplyDataInstruction(ctx, input)
		return dataDoneMsg{frame: f, err: err}
	})
}

func (m *Model) finishOperation(err error) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.state = StateInput
	if errors.Is(err, context.Canceled) {
		m.addNote(NotifyWarning, "Cancelled")
	}
}

func (m *Model) addNote(level NotifyLevel, message string) {
	m.notes = append(m.notes, notification{level: level, message: message})
	if len(m.notes) > 5 {
		m.notes = m.notes[len(m.notes)-5:]
	}
}

// tableRows is the number of data rows that fit the current terminal
func (m Model) tableRows() int {
	return max((m.height-16)/2, 3)
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("datapilot"))
	sb.WriteString(m.styles.Dim.Render(fmt.Sprintf("  %s · %d rows", m.providerName, m.original.Len())))
	sb.WriteString("\n\n")

	label, frame := "Transformed data", m.working
	if m.showOrig {
		label, frame = "Original data", m.original
	}
	sb.WriteString(m.styles.Info.Render(label))
	sb.WriteString("\n")
	sb.WriteString(renderFrame(frame, m.tableRows(), m.theme))
	sb.WriteString("\n")

	sb.WriteString(m.styles.Info.Render("Chart"))
	sb.WriteString("\n")
	chart := m.chart
	if chart == "" {
		chart = m.styles.Dim.Render("(none)")
	}
	for _, line := range wrapText(chart, max(m.width-2, 20)) {
		sb.WriteString(m.styles.Accent.Render(line))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	for _, n := range m.notes {
		sb.WriteString(m.noteStyle(n.level).Render(n.message))
		sb.WriteString("\n")
	}

	switch m.state {
	case StateTransforming, StatePlotting:
		elapsed := int(time.Since(m.startTime).Seconds())
		sb.WriteString(fmt.Sprintf("%s Generating %s code... %s\n",
			m.spinner.View(), m.mode, m.styles.Dim.Render(fmt.Sprintf("(esc to cancel · %ds)", elapsed))))
	default:
		sb.WriteString(m.styles.Prompt.Render(fmt.Sprintf("%-4s >", m.mode)) + " " + m.textarea.View() + "\n")
	}
	sb.WriteString(m.styles.Dim.Render("tab mode · enter submit · ctrl+r reset · ctrl+o original · ctrl+c twice quit"))
	return sb.String()
}

func (m Model) noteStyle(level NotifyLevel) lipgloss.Style {
	switch level {
	case NotifySuccess:
		return m.styles.Success
	case NotifyError:
		return m.styles.Error
	case NotifyWarning:
		return m.styles.Warning
	default:
		return m.styles.Info
	}
}

// RunTUI starts the interactive interface. Session notifications are
// forwarded into the program as messages.
func RunTUI(ctx context.Context, session *Session, cfg *Config, notes *ProgramNotifier) error {
	m := NewModel(session, cfg)
	m.ctx = ctx
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	notes.Attach(p)
	_, err := p.Run()
	return err
}

// ProgramNotifier forwards notifications to a running bubbletea program
type ProgramNotifier struct {
	program *tea.Program

	// Fallback receives notifications while no program is attached
	Fallback Notifier
}

// Attach sets the program notifications are sent to
func (n *ProgramNotifier) Attach(p *tea.Program) {
	n.program = p
}

// Notify sends the notification to the program, if one is attached
func (n *ProgramNotifier) Notify(level NotifyLevel, message string) {
	switch {
	case n.program != nil:
		n.program.Send(notifyMsg{level: level, message: message})
	case n.Fallback != nil:
		n.Fallback.Notify(level, message)
	}
}
