package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/negotiation"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/BioHazard786/warpcall/internal/webrtc"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

const toggleTimeout = 2 * time.Second

// Controls are the call actions bound to keys.
type Controls interface {
	ToggleCamera(ctx context.Context) (bool, error)
	ToggleMic(ctx context.Context) (bool, error)
}

// Messages fed to the model. Sink calls become these.
type (
	localMsg struct {
		tracks map[webrtc.TrackKind]bool
	}
	remoteMsg struct {
		member call.MemberID
		kinds  []webrtc.TrackKind
	}
	hideMsg struct {
		member call.MemberID
	}
	layoutMsg struct {
		layout room.Layout
	}
	stateMsg struct {
		member call.MemberID
		state  negotiation.State
	}
	toggledMsg struct {
		kind    webrtc.TrackKind
		enabled bool
	}
	remoteTrackMsg struct {
		member  call.MemberID
		kind    webrtc.TrackKind
		enabled bool
	}
	errMsg   struct{ err error }
	closeMsg struct{}
)

// CallUI is the terminal call view. It implements room.Sink; Sink calls
// are queued and never block the coordinator.
type CallUI struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}
	once    sync.Once
	log     zerolog.Logger
}

// NewCallUI builds the view for roomID. controls may be nil, in which case
// the camera and mic keys do nothing.
func NewCallUI(roomID call.RoomID, identity call.MemberID, controls Controls, log zerolog.Logger) *CallUI {
	updates := make(chan tea.Msg, 128)
	return &CallUI{
		program: tea.NewProgram(newCallModel(roomID, identity, controls, updates)),
		updates: updates,
		done:    make(chan struct{}),
		log:     log.With().Str("component", "ui").Logger(),
	}
}

// Run shows the view until the user quits or Quit is called.
func (u *CallUI) Run() error {
	_, err := u.program.Run()
	return err
}

// Quit stops a running view. It is a no-op once Run has returned.
func (u *CallUI) Quit() {
	u.once.Do(func() {
		close(u.done)
		u.program.Send(closeMsg{})
	})
}

// push queues msg without blocking. When the queue is full, tile removal
// and layout changes are handed to a goroutine so they still arrive; other
// updates are dropped since a later one supersedes them.
func (u *CallUI) push(msg tea.Msg) {
	select {
	case u.updates <- msg:
		return
	default:
	}

	switch msg.(type) {
	case hideMsg, layoutMsg:
		u.log.Debug().Str("msg", fmt.Sprintf("%T", msg)).Msg("update queue full, deferring")
		go func() {
			select {
			case u.updates <- msg:
			case <-u.done:
			}
		}()
	default:
		u.log.Warn().Str("msg", fmt.Sprintf("%T", msg)).Msg("update queue full, dropped")
	}
}

func (u *CallUI) ShowLocal(tracks []webrtc.Track) {
	u.push(localMsg{tracks: trackStates(tracks)})
}

func (u *CallUI) ShowRemote(member call.MemberID, stream *webrtc.RemoteStream) {
	u.push(remoteMsg{member: member, kinds: streamKinds(stream)})
}

func (u *CallUI) RemoteStreamChanged(member call.MemberID, stream *webrtc.RemoteStream) {
	u.push(remoteMsg{member: member, kinds: streamKinds(stream)})
}

// HideRemote removes the member tile. It is never dropped, even when the
// queue is full.
func (u *CallUI) HideRemote(member call.MemberID) {
	u.push(hideMsg{member: member})
}

func (u *CallUI) SetLayout(l room.Layout) {
	u.push(layoutMsg{layout: l})
}

func (u *CallUI) SessionState(member call.MemberID, state negotiation.State) {
	u.push(stateMsg{member: member, state: state})
}

func (u *CallUI) TrackToggled(kind webrtc.TrackKind, enabled bool) {
	u.push(toggledMsg{kind: kind, enabled: enabled})
}

func (u *CallUI) RemoteTrackState(member call.MemberID, kind webrtc.TrackKind, enabled bool) {
	u.push(remoteTrackMsg{member: member, kind: kind, enabled: enabled})
}

func trackStates(tracks []webrtc.Track) map[webrtc.TrackKind]bool {
	if tracks == nil {
		return nil
	}
	out := make(map[webrtc.TrackKind]bool, len(tracks))
	for _, t := range tracks {
		out[t.Kind()] = t.Enabled()
	}
	return out
}

func streamKinds(stream *webrtc.RemoteStream) []webrtc.TrackKind {
	if stream == nil {
		return nil
	}
	var kinds []webrtc.TrackKind
	for _, t := range stream.Tracks() {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

type remoteTile struct {
	state    negotiation.State
	kinds    []webrtc.TrackKind
	disabled map[webrtc.TrackKind]bool
}

type callModel struct {
	room     call.RoomID
	identity call.MemberID
	controls Controls
	updates  chan tea.Msg

	spinner spinner.Model
	local   map[webrtc.TrackKind]bool
	remotes map[call.MemberID]*remoteTile
	layout  room.Layout
	lastErr string

	quitting bool
}

func newCallModel(roomID call.RoomID, identity call.MemberID, controls Controls, updates chan tea.Msg) *callModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = SpinnerStyle

	return &callModel{
		room:     roomID,
		identity: identity,
		controls: controls,
		updates:  updates,
		spinner:  s,
		remotes:  make(map[call.MemberID]*remoteTile),
	}
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

func (m *callModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

func (m *callModel) toggle(f func(context.Context) (bool, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), toggleTimeout)
		defer cancel()
		if _, err := f(ctx); err != nil {
			return errMsg{err: err}
		}
		// the coordinator reports the new state through the sink
		return nil
	}
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			if m.controls != nil {
				return m, m.toggle(m.controls.ToggleCamera)
			}
		case "m":
			if m.controls != nil {
				return m, m.toggle(m.controls.ToggleMic)
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case errMsg:
		m.lastErr = msg.err.Error()
		return m, nil

	case closeMsg:
		m.quitting = true
		return m, tea.Quit
	}

	if m.apply(msg) {
		return m, m.listenForUpdates()
	}
	return m, nil
}

// apply folds a sink message into the model. It reports whether msg came
// from the update queue.
func (m *callModel) apply(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case localMsg:
		m.local = msg.tracks
	case remoteMsg:
		m.tile(msg.member).kinds = msg.kinds
	case hideMsg:
		delete(m.remotes, msg.member)
	case layoutMsg:
		m.layout = msg.layout
	case stateMsg:
		m.tile(msg.member).state = msg.state
	case toggledMsg:
		if m.local == nil {
			m.local = make(map[webrtc.TrackKind]bool)
		}
		m.local[msg.kind] = msg.enabled
		m.lastErr = ""
	case remoteTrackMsg:
		m.tile(msg.member).disabled[msg.kind] = !msg.enabled
	default:
		return false
	}
	return true
}

func (m *callModel) tile(member call.MemberID) *remoteTile {
	t, ok := m.remotes[member]
	if !ok {
		t = &remoteTile{disabled: make(map[webrtc.TrackKind]bool)}
		m.remotes[member] = t
	}
	return t
}

func (m *callModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s %s  %s %s  %s %s\n\n",
		IconCall, TitleStyle.Render("warpcall"),
		IconRoom, BoldStyle.Render(m.room.String()),
		IconPeer, MutedStyle.Render(m.identity.String()))

	local := m.localView()
	if m.layout == room.LayoutSplit && len(m.remotes) > 0 {
		tiles := []string{LocalTileStyle.Width(28).Render(local)}
		for _, member := range m.remoteOrder() {
			tiles = append(tiles, RemoteTileStyle.Width(40).Render(m.remoteView(member)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tiles...))
	} else {
		b.WriteString(LocalTileStyle.Width(60).Render(local))
		fmt.Fprintf(&b, "\n\n%s Waiting for someone to join...", m.spinner.View())
	}
	b.WriteString("\n")

	if m.lastErr != "" {
		b.WriteString("\n" + ErrorStyle.Render(m.lastErr) + "\n")
	}
	b.WriteString(FooterStyle.Render("c camera • m mic • q leave"))
	return b.String()
}

func (m *callModel) localView() string {
	if m.local == nil {
		return BoldStyle.Render("You") + "\n" + WarningStyle.Render("no local media")
	}

	lines := []string{BoldStyle.Render("You")}
	if enabled, ok := m.local[webrtc.KindVideo]; ok {
		lines = append(lines, fmt.Sprintf("%s camera %s", IconCamera, onOff(enabled)))
	}
	if enabled, ok := m.local[webrtc.KindAudio]; ok {
		icon := IconMic
		if !enabled {
			icon = IconMuted
		}
		lines = append(lines, fmt.Sprintf("%s mic %s", icon, onOff(enabled)))
	}
	return strings.Join(lines, "\n")
}

func (m *callModel) remoteView(member call.MemberID) string {
	t := m.remotes[member]
	lines := []string{
		fmt.Sprintf("%s %s", IconPeer, BoldStyle.Render(member.String())),
		StatusStyle.Render(t.state.String()),
	}
	if len(t.kinds) == 0 {
		lines = append(lines, MutedStyle.Render("no media yet"))
	}
	for _, k := range t.kinds {
		icon := IconCamera
		if k == webrtc.KindAudio {
			icon = IconMic
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", icon, k, onOff(!t.disabled[k])))
	}
	return strings.Join(lines, "\n")
}

func (m *callModel) remoteOrder() []call.MemberID {
	members := make([]call.MemberID, 0, len(m.remotes))
	for member := range m.remotes {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}
