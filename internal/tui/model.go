// Package tui is a terminal front end for a running agent: it shows the
// conversation log and agent state and forwards typed input.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	orchestration "github.com/koscakluka/ema-agent/core"
	"github.com/koscakluka/ema-agent/core/conversations"
	"github.com/muesli/reflow/wordwrap"
)

const (
	headerHeight = 1
	inputHeight  = 1
	// header, separator and input line
	chromeHeight = headerHeight + inputHeight + 1
)

type Agent interface {
	SubmitText(text string) bool
	SubscribeState() (<-chan orchestration.AgentState, func())
	Log() *conversations.Log
}

type entryMsg conversations.Entry

type stateMsg orchestration.AgentState

type closedMsg struct{}

type Model struct {
	submit  func(string) bool
	entries <-chan conversations.Entry
	states  <-chan orchestration.AgentState
	closers []func()

	viewport viewport.Model
	input    textinput.Model
	log      []conversations.Entry
	state    orchestration.AgentState
	notice   string
	width    int
	ready    bool
	quitting bool
}

func NewModel(agent Agent) Model {
	entries, unsubscribeLog := agent.Log().Subscribe()
	states, unsubscribeState := agent.SubscribeState()
	return newModel(agent.SubmitText, entries, states, unsubscribeLog, unsubscribeState)
}

func newModel(submit func(string) bool, entries <-chan conversations.Entry, states <-chan orchestration.AgentState, closers ...func()) Model {
	input := textinput.New()
	input.Placeholder = "Type instead of speaking, Enter to send"
	input.Prompt = "› "
	input.Focus()

	return Model{
		submit:  submit,
		entries: entries,
		states:  states,
		closers: closers,
		input:   input,
	}
}

// Close releases the log and state subscriptions.
func (m Model) Close() {
	for _, closer := range m.closers {
		closer()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEntry(m.entries), waitForState(m.states))
}

func waitForEntry(entries <-chan conversations.Entry) tea.Cmd {
	return func() tea.Msg {
		entry, ok := <-entries
		if !ok {
			return closedMsg{}
		}
		return entryMsg(entry)
	}
}

func waitForState(states <-chan orchestration.AgentState) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-states
		if !ok {
			return closedMsg{}
		}
		return stateMsg(state)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := max(msg.Height-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-4, 1)
		m.refresh()
		return m, nil

	case entryMsg:
		m.log = append(m.log, conversations.Entry(msg))
		m.refresh()
		return m, waitForEntry(m.entries)

	case stateMsg:
		m.state = orchestration.AgentState(msg)
		if m.state == orchestration.StateInactive && len(m.log) > 0 {
			m.quitting = true
			return m, tea.Quit
		}
		return m, waitForState(m.states)

	case closedMsg:
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.quitting = true
		return m, tea.Quit

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if m.submit(text) {
			m.input.Reset()
			m.notice = ""
		} else {
			m.notice = "Busy, try again in a moment."
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	wrapAt := max(m.width-2, 10)

	var b strings.Builder
	for _, entry := range m.log {
		switch entry.Sender {
		case conversations.SenderUser:
			b.WriteString(userLabelStyle.Render("You") + "\n")
		case conversations.SenderAssistant:
			b.WriteString(assistantLabelStyle.Render("Ema") + "\n")
		default:
			b.WriteString(actionStyle.Render(wordwrap.String("· "+entry.Text, wrapAt)) + "\n\n")
			continue
		}
		b.WriteString(wordwrap.String(entry.Text, wrapAt) + "\n\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting...\n"
	}

	header := headerStyle.Render("ema") + " " + stateStyle.Render(m.state.String())
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		separatorStyle.Render(strings.Repeat("─", max(m.width, 1))),
		m.input.View(),
	)
}
