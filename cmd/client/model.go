package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Avicted/callrelay/internal/call"
	"github.com/Avicted/callrelay/internal/coordinator"
	"github.com/Avicted/callrelay/internal/ipc"
)

// sender is the command side of the daemon connection.
type sender interface {
	send(msg ipc.Message) error
}

// callModel renders the coordinator flags for the daemon's call state and
// turns keys into daemon commands.
type callModel struct {
	daemon sender
	events <-chan ipc.Message

	state     call.State
	flags     coordinator.Flags
	connected bool
	speaking  bool
	facing    string
	video     bool
	errMsg    string

	input  textinput.Model
	width  int
	height int
}

type daemonEventMsg ipc.Message

type daemonClosedMsg struct{}

func newCallModel(daemon sender, events <-chan ipc.Message) callModel {
	input := textinput.New()
	input.Placeholder = "user id to call"
	input.CharLimit = 128
	input.Width = 32
	input.Focus()

	m := callModel{
		daemon: daemon,
		events: events,
		input:  input,
		facing: "front",
	}
	m.applyState(call.State{Kind: call.Idle})
	return m
}

func waitForDaemon(ch <-chan ipc.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return daemonClosedMsg{}
		}
		return daemonEventMsg(msg)
	}
}

func (m callModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForDaemon(m.events))
}

func (m callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = clampMin(msg.Width-8, 20)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case daemonEventMsg:
		m.handleEvent(ipc.Message(msg))
		return m, waitForDaemon(m.events)

	case daemonClosedMsg:
		m.connected = false
		if m.errMsg == "" {
			m.errMsg = "daemon connection closed"
		}
		return m, nil
	}

	if !m.flags.CanMakeCall {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *callModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	switch {
	case m.flags.IncomingOverlay:
		switch key {
		case "y", "enter":
			m.command(ipc.Message{Cmd: ipc.CommandAccept})
		case "n", "esc":
			m.command(ipc.Message{Cmd: ipc.CommandReject})
		}
		return nil, true
	case m.flags.OutgoingOverlay:
		if key == "esc" || key == "c" {
			m.command(ipc.Message{Cmd: ipc.CommandCancel})
		}
		return nil, true
	case m.flags.InCallScreen:
		switch key {
		case "h", "esc":
			m.command(ipc.Message{Cmd: ipc.CommandEnd})
		case "s":
			m.command(ipc.Message{Cmd: ipc.CommandSwitchCamera})
		}
		return nil, true
	}

	switch key {
	case "enter":
		user := strings.TrimSpace(m.input.Value())
		if user == "" {
			m.errMsg = "enter a user id to call"
			return nil, true
		}
		m.command(ipc.Message{Cmd: ipc.CommandCall, User: user, Video: m.video})
		m.input.SetValue("")
		return nil, true
	case "tab":
		m.video = !m.video
		return nil, true
	}
	return nil, false
}

func (m *callModel) command(msg ipc.Message) {
	if m.daemon == nil {
		m.errMsg = "daemon unavailable"
		return
	}
	if err := m.daemon.send(msg); err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
}

func (m *callModel) handleEvent(msg ipc.Message) {
	switch msg.Event {
	case ipc.EventReady:
		m.connected = true
		m.command(ipc.Message{Cmd: ipc.CommandState})
	case ipc.EventState:
		m.applyState(stateFromMessage(msg))
	case ipc.EventIncoming:
		if m.state.Session != nil && m.state.Kind == call.IncomingCall {
			m.state.Session.IsVideoCall = msg.Video
			m.applyState(m.state)
		}
	case ipc.EventConnection:
		m.connected = msg.Active
	case ipc.EventSpeaking:
		m.speaking = msg.Active
	case ipc.EventCamera:
		m.facing = msg.Facing
	case ipc.EventError:
		m.errMsg = msg.Error
	}
}

func (m *callModel) applyState(st call.State) {
	m.state = st
	m.speaking = st.Speaking
	m.flags = coordinator.FromState(st)
	if m.flags.CanMakeCall {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// stateFromMessage rebuilds enough of a call state for the coordinator
// from a daemon state event.
func stateFromMessage(msg ipc.Message) call.State {
	kind, ok := call.ParseKind(msg.State)
	if !ok {
		kind = call.Idle
	}
	st := call.State{
		Kind:     kind,
		CallID:   msg.Call,
		Reason:   msg.Reason,
		Video:    msg.Video,
		Speaking: msg.Active,
	}
	if kind.Busy() {
		sess := &call.Session{CallID: msg.Call, RoomID: msg.Room}
		if kind == call.OutgoingCall {
			sess.ToUserID = msg.Peer
		} else {
			sess.FromUserID = msg.Peer
			sess.FromUserName = msg.Peer
		}
		st.Session = sess
	}
	return st
}

func (m callModel) View() string {
	var b strings.Builder

	header := "  " + appNameStyle.Render("* callrelay") + "  " + stateBadge(m.state.Kind)
	connStatus := connectionText(m.connected)
	gap := max(1, m.width-lipgloss.Width(header)-lipgloss.Width(connStatus)-2)
	b.WriteString(header + strings.Repeat(" ", gap) + connStatus)
	b.WriteString("\n")
	b.WriteString(separator(m.width))
	b.WriteString("\n\n")

	switch {
	case m.flags.IncomingOverlay:
		b.WriteString(m.overlay(m.flags.Banner, "y: accept - n: reject"))
	case m.flags.OutgoingOverlay:
		b.WriteString(m.overlay(m.flags.Banner, "esc: cancel"))
	case m.flags.InCallScreen:
		b.WriteString(m.inCallView())
	default:
		if m.flags.Banner != "" {
			b.WriteString(centerText(bannerText(m.state.Kind, m.flags.Banner), m.width))
			b.WriteString("\n\n")
		}
		mode := "voice"
		if m.video {
			mode = "video"
		}
		b.WriteString(activeInputStyle.Render("  call > ") + m.input.View() + labelStyle.Render(" ["+mode+"]"))
	}
	b.WriteString("\n\n")
	b.WriteString(separator(m.width))
	b.WriteString("\n")

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render("  x " + m.errMsg))
	} else {
		b.WriteString(helpStyle.Render("  " + m.help()))
	}
	return b.String()
}

func (m callModel) overlay(title, keys string) string {
	box := overlayBox(m.state.Kind, headerStyle.Render(title)+"\n\n"+helpStyle.Render(keys))
	if m.width <= 0 {
		return box
	}
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, box)
}

func (m callModel) inCallView() string {
	var lines []string
	peer := ""
	if m.state.Session != nil {
		peer = m.state.Session.FromUserName
		if peer == "" {
			peer = m.state.Session.ToUserID
		}
	}
	if m.flags.Banner != "" {
		lines = append(lines, bannerText(m.state.Kind, m.flags.Banner))
	} else {
		lines = append(lines, headerStyle.Render("In call with "+peer))
	}
	media := "audio only"
	if m.state.Video {
		media = fmt.Sprintf("video (%s camera)", m.facing)
	}
	lines = append(lines, labelStyle.Render(media))
	if m.speaking {
		lines = append(lines, speakingStyle.Render("speaking"))
	}
	return "  " + strings.Join(lines, "\n  ")
}

func (m callModel) help() string {
	switch {
	case m.flags.IncomingOverlay:
		return "y/enter: accept - n/esc: reject - ctrl+q: quit"
	case m.flags.OutgoingOverlay:
		return "esc: cancel - ctrl+q: quit"
	case m.flags.InCallScreen:
		return "h/esc: hang up - s: switch camera - ctrl+q: quit"
	}
	return "enter: call - tab: toggle video - ctrl+q: quit"
}

func clampMin(v, minimum int) int {
	if v < minimum {
		return minimum
	}
	return v
}
