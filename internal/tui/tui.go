package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/pebbles/internal/game"
)

// TUIModel represents the Bubble Tea model for a pebbles game
type TUIModel struct {
	ctx     context.Context
	backend Backend
	config  game.Init
	logger  *log.Logger

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	// State
	gameLog     []string
	state       *game.GameState
	busy        bool
	quitting    bool
	focusedPane int // 0 = log, 1 = input

	// Dimensions
	width       int
	height      int
	initialized bool // Track if viewport has been properly sized

	// Test mode
	testMode    bool
	capturedLog []string // For test assertions
}

// resultMsg carries the outcome of a backend call into Update.
type resultMsg struct {
	update Update
	err    error
	// restarted is set when the call began a new game
	restarted bool
}

// NewTUIModel creates a new TUI model playing cfg games through backend
func NewTUIModel(ctx context.Context, backend Backend, cfg game.Init, logger *log.Logger) *TUIModel {
	return NewTUIModelWithOptions(ctx, backend, cfg, logger, false)
}

// NewTUIModelWithOptions creates a new TUI model with test mode option
func NewTUIModelWithOptions(ctx context.Context, backend Backend, cfg game.Init, logger *log.Logger, testMode bool) *TUIModel {
	// Create viewport for game log with minimal initial size
	// Will be properly sized when WindowSizeMsg arrives
	vp := viewport.New(10, 5)
	vp.SetContent("")

	// Create textinput for action input
	ti := textinput.New()
	ti.Placeholder = "How many pebbles? (or give up, restart, help, quit)"
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 64
	ti.PromptStyle = PromptStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &TUIModel{
		ctx:         ctx,
		backend:     backend,
		config:      cfg,
		logger:      logger.WithPrefix("tui"),
		logViewport: vp,
		actionInput: ti,
		gameLog:     []string{},
		focusedPane: 1, // Start with input focused
		testMode:    testMode,
		capturedLog: []string{},
	}
}

// Init starts the first game
func (m *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.startGame())
}

func (m *TUIModel) startGame() tea.Cmd {
	m.busy = true
	backend, ctx, cfg := m.backend, m.ctx, m.config
	return func() tea.Msg {
		update, err := backend.Start(ctx, cfg)
		return resultMsg{update: update, err: err, restarted: true}
	}
}

func (m *TUIModel) act(action game.Action) tea.Cmd {
	m.busy = true
	backend, ctx := m.backend, m.ctx
	restart := action.Type == game.ActionRestart
	return func() tea.Msg {
		update, err := backend.Act(ctx, action)
		return resultMsg{update: update, err: err, restarted: restart}
	}
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case resultMsg:
		m.applyResult(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updating dimensions", "width", m.width, "height", m.height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			// Switch focus between log and input
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 { // Only process enter in input pane
				input := strings.TrimSpace(m.actionInput.Value())
				m.actionInput.SetValue("")
				if cmd := m.submit(input); cmd != nil {
					cmds = append(cmds, cmd)
				}
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	if m.quitting {
		return m, tea.Quit
	}

	// Update components
	var cmd tea.Cmd

	// Only update input if it's focused
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Always update viewport (for scrolling)
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit handles one line of player input and returns the backend call it
// starts, if any.
func (m *TUIModel) submit(input string) tea.Cmd {
	command, err := ParseCommand(input, m.config)
	if err != nil {
		m.AddLogEntry(ErrorStyle.Render(err.Error()))
		return nil
	}

	switch command.Kind {
	case CommandQuit:
		m.quitting = true
		return tea.Quit
	case CommandHelp:
		m.AddLogEntry(InfoStyle.Render(helpText))
		return nil
	}

	if m.busy {
		m.AddLogEntry(WarningStyle.Render("Still waiting for the last move..."))
		return nil
	}

	if command.Kind == CommandRestart {
		m.config = *command.Init
		m.AddLogEntry("")
	} else {
		m.AddLogEntry(InfoStyle.Render("> " + input))
	}
	action, _ := command.Action()
	return m.act(action)
}

func (m *TUIModel) applyResult(msg resultMsg) {
	m.busy = false
	if msg.err != nil {
		m.logger.Warn("Backend call failed", "error", msg.err)
		m.AddLogEntry(ErrorStyle.Render("Error: " + msg.err.Error()))
		return
	}

	state := msg.update.State
	if msg.restarted {
		m.AddLogEntry(HeaderStyle.Render(fmt.Sprintf(" New game: %d pebbles, take 1-%d per turn, %s ",
			state.PebblesCount, state.MaxPebblesPerTurn, state.Difficulty)))
	}
	for _, event := range msg.update.Events {
		m.AddLogEntry(describeEvent(event))
	}
	wasOver := m.state != nil && m.state.IsOver() && !msg.restarted
	m.state = &state

	if state.IsOver() && !wasOver {
		// a winning turn reports only the move, not the win
		if !hasWon(msg.update.Events) {
			m.AddLogEntry(describeEvent(game.Won(*state.Winner)))
		}
		m.AddLogEntry(InfoStyle.Render("Type 'restart' to play again or 'quit' to leave."))
	}
}

func hasWon(events []game.Event) bool {
	for _, event := range events {
		if event.Type == game.EventWon {
			return true
		}
	}
	return false
}

// describeEvent renders an event as a log line.
func describeEvent(event game.Event) string {
	switch event.Type {
	case game.EventCounterTurn:
		noun := "pebbles"
		if event.Count == 1 {
			noun = "pebble"
		}
		if event.Player == game.User {
			return UserStyle.Render(fmt.Sprintf("You took %d %s", event.Count, noun))
		}
		return ProgramStyle.Render(fmt.Sprintf("Program took %d %s", event.Count, noun))
	case game.EventWon:
		if event.Player == game.User {
			return SuccessStyle.Render("You won!")
		}
		return ErrorStyle.Render("Program won.")
	default:
		return event.String()
	}
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}

	// Don't render until we have valid dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	// Action pane (bottom, full width)
	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := PaneStyle.
		BorderForeground(lipgloss.Color("#04B575")).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight, 1))
	actionPane := actionStyle.Render(actionContent)

	// Sidebar pane (right side of log pane, same height as log pane)
	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 25)
	paneHeight := max(m.height-actionHeight-4, 1) // Account for border x 2 and action pane

	sidebarPane := PaneStyle.
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	// Log pane (top, fills height minus action pane)
	m.logViewport.SetContent(m.renderLogPane())
	m.logViewport.Width = max(m.width-sidebarWidth-4, 1)
	m.logViewport.Height = paneHeight

	if !m.initialized && m.logViewport.Width > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := PaneStyle.
		Width(m.logViewport.Width).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	// Top row (log pane + sidebar pane)
	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)

	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

// renderLogPane renders the game log pane content
func (m *TUIModel) renderLogPane() string {
	return strings.Join(m.gameLog, "\n")
}

// renderSidebarPane shows the pile and whose turn it is
func (m *TUIModel) renderSidebarPane() string {
	var content strings.Builder

	if m.state == nil {
		content.WriteString(InfoStyle.Render("Starting game..."))
		return content.String()
	}

	s := m.state
	content.WriteString(PileStyle.Render(fmt.Sprintf("Pebbles: %d / %d", s.PebblesRemaining, s.PebblesCount)))
	content.WriteString("\n")
	content.WriteString(renderPile(s.PebblesRemaining))
	content.WriteString("\n\n")
	content.WriteString(InfoStyle.Render(fmt.Sprintf("Take 1-%d per turn", s.MaxPebblesPerTurn)))
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render("Difficulty: " + s.Difficulty.String()))
	content.WriteString("\n\n")

	switch {
	case s.Winner != nil && *s.Winner == game.User:
		content.WriteString(SuccessStyle.Render("You won"))
	case s.Winner != nil:
		content.WriteString(ErrorStyle.Render("Program won"))
	case s.FirstPlayer == game.User:
		content.WriteString(WarningStyle.Render("Your turn"))
	default:
		content.WriteString(InfoStyle.Render("Program's turn"))
	}

	return content.String()
}

// renderPile draws up to a few rows of pebbles.
func renderPile(remaining uint32) string {
	const perRow, maxRows = 10, 4
	shown := remaining
	if shown > perRow*maxRows {
		shown = perRow * maxRows
	}
	var rows []string
	for shown > 0 {
		n := min(shown, perRow)
		rows = append(rows, PebbleStyle.Render(strings.Repeat("● ", int(n))))
		shown -= n
	}
	if remaining > perRow*maxRows {
		rows = append(rows, InfoStyle.Render(fmt.Sprintf("+%d more", remaining-perRow*maxRows)))
	}
	return strings.Join(rows, "\n")
}

// renderActionPane renders the action input pane
func (m *TUIModel) renderActionPane() string {
	var content strings.Builder

	switch {
	case m.busy:
		content.WriteString(ActionsStyle.Render("Waiting..."))
	case m.state != nil && m.state.IsOver():
		content.WriteString(ActionsStyle.Render("Game over: restart or quit"))
	default:
		content.WriteString(ActionsStyle.Render(fmt.Sprintf("Your move: take 1-%d", m.config.MaxPebblesPerTurn)))
	}
	content.WriteString("\n")

	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	// Show help text
	if m.focusedPane == 0 {
		content.WriteString(HelpStyle.Render("Log focused: ↑↓ scroll, Home/End, Tab to input"))
	} else {
		content.WriteString(HelpStyle.Render("Tab to scroll log • Enter to submit • Ctrl+C to quit"))
	}

	return content.String()
}

// AddLogEntry adds an entry to the game log
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)

	// In test mode, also capture the log entry
	if m.testMode {
		m.capturedLog = append(m.capturedLog, entry)
		return // Skip UI updates in test mode
	}

	// Update content and auto-scroll to bottom
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))

	// Only call GotoBottom if viewport has valid dimensions
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// State returns the last game state the backend reported, if any.
func (m *TUIModel) State() (game.GameState, bool) {
	if m.state == nil {
		return game.GameState{}, false
	}
	return *m.state, true
}

// GetCapturedLog returns the captured log entries (test mode only)
func (m *TUIModel) GetCapturedLog() []string {
	if !m.testMode {
		return nil
	}
	// Return a copy to prevent modification
	result := make([]string, len(m.capturedLog))
	copy(result, m.capturedLog)
	return result
}

// IsTestMode returns whether the TUI is in test mode
func (m *TUIModel) IsTestMode() bool {
	return m.testMode
}

// Run starts the program and blocks until the player quits.
func Run(ctx context.Context, backend Backend, cfg game.Init, logger *log.Logger) error {
	model := NewTUIModel(ctx, backend, cfg, logger)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if closeErr := backend.Close(); err == nil {
		err = closeErr
	}
	return err
}
