package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/closed-ai/pkg/chat"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "What do you do?"
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	api          *apiClient
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	status       string

	gameID    string
	started   bool
	blocked   bool
	loading   bool // waiting on our own start or input request
	history   []chat.ClientEvent
	streamID  int64
	streaming string // narrator text of the stream in flight
	bgURL     string

	events chan SSEEvent
	ctx    context.Context
	cancel context.CancelFunc

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type sseEventMsg struct {
	event SSEEvent
}

type sseClosedMsg struct {
	err error
}

type historyMsg struct {
	messages []chat.ClientEvent
	err      error
}

type actionDoneMsg struct {
	err error
}

type gameDeletedMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, api *apiClient, gameID string, started bool) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	ctx, cancel := context.WithCancel(context.Background())
	return ConsoleUI{
		config:       cfg,
		api:          api,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		gameID:       gameID,
		started:      started,
		events:       make(chan SSEEvent, 64),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("GAME") + "\n\n")

	content.WriteString("Game ID:\n")
	id := m.gameID
	if len(id) > 8 {
		id = id[:8] + "..."
	}
	content.WriteString(id + "\n\n")

	content.WriteString("Status:\n")
	switch {
	case m.blocked:
		content.WriteString(loadingStyle.Render("Narrating") + "\n\n")
	case m.started:
		content.WriteString("Your turn\n\n")
	default:
		content.WriteString("Not started\n\n")
	}

	content.WriteString("Messages:\n")
	content.WriteString(fmt.Sprintf("%d total\n\n", len(m.history)))

	content.WriteString("Background:\n")
	if m.bgURL == "" {
		content.WriteString("None yet\n")
	} else {
		content.WriteString(wordwrap.String(m.bgURL, max(m.metaViewport.Width, 10)) + "\n")
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /copy: Copy passage\n")

	return content.String()
}

// writeChatContent renders the history and any stream in flight for the
// current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("CLOSED AI") + "\n\n")
	content.WriteString("Type your actions below to move the story along.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(chatWidth-6, 1))) + "\n\n")

	for _, msg := range m.history {
		switch msg.Type {
		case chat.ClientEventServer:
			content.WriteString(formatNarratorResponse(msg.Content, chatWidth) + "\n\n")
		case chat.ClientEventPlayer:
			content.WriteString(userStyle.Render(msg.Author+": ") + wordwrap.String(msg.Content, chatWidth-6) + "\n\n")
		}
	}

	if m.streaming != "" {
		content.WriteString(formatNarratorResponse(m.streaming, chatWidth) + "\n\n")
	} else if m.loading || m.blocked {
		content.WriteString(m.renderProgressBar() + "\n\n")
	}

	if m.status != "" {
		content.WriteString(promptStyle.Render(m.status) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.listen(), m.waitForEvent())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}
			if m.loading || !m.started {
				return m, nil
			}

			m.textarea.Reset()
			m.loading = true
			m.err = nil
			m.status = ""
			m.progressTick = 0
			m.writeChatContent()
			return m, tea.Batch(m.sendInput(input), progressTick())
		}

	case sseEventMsg:
		m.handleEvent(msg.event)
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		cmds := []tea.Cmd{m.waitForEvent()}
		if msg.event.Type == "connected" {
			cmds = append(cmds, m.loadHistory())
		}
		return m, tea.Batch(cmds...)

	case sseClosedMsg:
		if msg.err != nil && m.ctx.Err() == nil {
			m.err = msg.err
			m.writeChatContent()
		}
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.history = msg.messages
		}
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		if !m.started && msg.err == nil {
			m.loading = true
			m.progressTick = 0
			return m, tea.Batch(m.startGame(), progressTick())
		}
		return m, nil

	case actionDoneMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.started = true
		}
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil

	case gameDeletedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.writeChatContent()
			return m, nil
		}
		m.cancel()
		return m, tea.Quit

	case progressTickMsg:
		if m.loading || m.blocked {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// handleEvent folds one game room event into the model.
func (m *ConsoleUI) handleEvent(event SSEEvent) {
	switch event.Type {
	case "connected":
		var state struct {
			Blocked bool `json:"blocked"`
		}
		if err := json.Unmarshal(event.Data, &state); err == nil {
			m.blocked = state.Blocked
		}

	case "message-stream":
		var raw string
		if err := json.Unmarshal(event.Data, &raw); err != nil {
			return
		}
		packet, err := chat.ParsePacket(raw)
		if err != nil {
			return
		}
		if packet.StreamID != m.streamID {
			m.streamID = packet.StreamID
			m.streaming = ""
		}
		m.streaming += packet.Delta

	case "game-message":
		var msg chat.ClientEvent
		if err := json.Unmarshal(event.Data, &msg); err != nil {
			return
		}
		m.history = append(m.history, msg)
		if msg.Type == chat.ClientEventServer {
			m.streaming = ""
		}

	case "game-block":
		m.blocked = true
	case "game-unblock":
		m.blocked = false

	case "background-change":
		var url string
		if err := json.Unmarshal(event.Data, &url); err == nil {
			m.bgURL = url
		}
	}
}

func formatNarratorResponse(response string, width int) string {
	// Check if response already has a speaker prefix
	hasPrefix := false
	if idx := strings.Index(response, ":"); idx > 0 && idx <= 20 {
		speaker := response[:idx]
		if len(strings.Fields(speaker)) <= 2 {
			hasPrefix = true
		}
	}

	// If no prefix, we'll add "Narrator: " so reduce available width
	wrapWidth := width
	if !hasPrefix {
		wrapWidth = width - len(AgentName+": ")
	}

	wrappedResponse := wordwrap.String(response, wrapWidth)
	lines := strings.Split(wrappedResponse, "\n")
	var formattedLines []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			formattedLines = append(formattedLines, "")
			continue
		}

		if idx := strings.Index(trimmed, ":"); idx > 0 && idx <= 20 {
			speaker := trimmed[:idx]
			rest := trimmed[idx+1:]
			if len(strings.Fields(speaker)) <= 2 {
				formattedLines = append(formattedLines, speakerStyle.Render(speaker+":")+rest)
				continue
			}
		}

		formattedLines = append(formattedLines, line)
	}

	result := strings.Join(formattedLines, "\n")
	if !hasPrefix {
		result = narratorStyle.Render(AgentName+": ") + result
	}
	return result
}

// lastPassage is the most recent narrator text.
func (m ConsoleUI) lastPassage() string {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Type == chat.ClientEventServer {
			return m.history[i].Content
		}
	}
	return ""
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))
	m.textarea.Reset()
	m.status = ""

	switch cmd {
	case "/help":
		m.status = `Commands:
• /help - Show this help
• /copy - Copy the last passage to the clipboard
• /history - Reload the story from the server
• /end - Delete this game and quit
• Ctrl+C - Quit (the game is kept)`

	case "/copy":
		passage := m.lastPassage()
		if passage == "" {
			m.status = "Nothing to copy yet."
			break
		}
		if err := clipboard.WriteAll(passage); err != nil {
			m.err = fmt.Errorf("failed to copy: %w", err)
			break
		}
		m.status = "Copied the last passage."

	case "/history":
		m.writeChatContent()
		return m, m.loadHistory()

	case "/end":
		return m, m.deleteGame()

	default:
		m.status = fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}

	m.writeChatContent()
	return m, nil
}

// listen runs the event stream until the UI quits.
func (m ConsoleUI) listen() tea.Cmd {
	return func() tea.Msg {
		return sseClosedMsg{err: m.api.listenToSSE(m.ctx, m.gameID, m.events)}
	}
}

func (m ConsoleUI) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case event := <-m.events:
			return sseEventMsg{event: event}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m ConsoleUI) loadHistory() tea.Cmd {
	return func() tea.Msg {
		messages, err := m.api.history(m.ctx, m.gameID)
		return historyMsg{messages, err}
	}
}

func (m ConsoleUI) startGame() tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{m.api.startGame(m.ctx, m.gameID)}
	}
}

func (m ConsoleUI) sendInput(input string) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{m.api.sendInput(m.ctx, m.gameID, input)}
	}
}

func (m ConsoleUI) deleteGame() tea.Cmd {
	return func() tea.Msg {
		return gameDeletedMsg{m.api.deleteGame(m.ctx, m.gameID)}
	}
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			m.cancel()
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				m.cancel()
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Your story is kept on the server until you end it.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"", // Add empty line for spacing
			separatorStyle.Render(strings.Repeat("─", max(chatWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
