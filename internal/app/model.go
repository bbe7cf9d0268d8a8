package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/w93163red/LivCap-Translate/internal/daemon"
	"github.com/w93163red/LivCap-Translate/internal/db"
	"github.com/w93163red/LivCap-Translate/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	historyLimit  = 200
	sessionsLimit = 30
	maxEntries    = 2000
	statusEvery   = 2 * time.Second
)

// PanelFocus is the panel receiving navigation keys.
type PanelFocus int

const (
	FocusSessions PanelFocus = iota
	FocusTranscript
)

// TranscriptEntry is a finalized caption and its translation, once known.
type TranscriptEntry struct {
	CaptionID   string
	Text        string
	Translation string
	Timestamp   time.Time
	SeqNum      int
}

// Options configures where the TUI finds the daemon and its database.
type Options struct {
	SocketPath   string
	DatabasePath string
}

// Model is the root bubbletea model for the livcap TUI.
type Model struct {
	opts Options

	// Connection state
	client    *daemon.Client // command connection
	evClient  *daemon.Client // event subscription connection
	connected bool
	connError string

	// Recording state
	recording           bool
	sessionID           string
	captionCount        int
	pendingTranslations int

	// Transcript
	entries             []TranscriptEntry
	partialText         string
	realtimeTranslation string
	showTranslation     bool

	// History: the session shown instead of the live one, if any.
	viewingSession string

	// Sessions panel
	sessions        []db.Session
	selectedSession int

	// UI state
	focusedPanel     PanelFocus
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool

	// Errors
	errorMessage   string
	errorTransient bool

	statusText string

	store *db.Store

	// Reconnect
	reconnecting     bool
	reconnectAttempt int
}

// New returns a disconnected model. Init dials the daemon.
func New(opts Options) Model {
	return Model{
		opts:            opts,
		statusText:      "Connecting to livcapd...",
		transcriptLive:  true,
		showTranslation: true,
		focusedPanel:    FocusTranscript,
	}
}

// Init returns the initial command: connect to the daemon.
func (m Model) Init() tea.Cmd {
	return connectCmd(m.opts.SocketPath)
}

// connectCmd opens the command connection and a second one that will
// carry the event subscription.
func connectCmd(sockPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := daemon.Connect(sockPath)
		if err != nil {
			return DaemonConnectErrorMsg{Err: err}
		}
		evClient, err := daemon.Connect(sockPath)
		if err != nil {
			client.Close()
			return DaemonConnectErrorMsg{Err: err}
		}
		return DaemonConnectedMsg{Client: client, EvClient: evClient}
	}
}

// subscribeCmd subscribes on the event client and starts reading events.
func subscribeCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		if err := evClient.Subscribe(); err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return readEventCmd(evClient)()
	}
}

// readEventCmd blocks on the event connection for one event.
func readEventCmd(evClient *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := evClient.ReadEvent()
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return DaemonEventMsg{Event: ev}
	}
}

// statusCmd polls the daemon for recording state and counters.
func statusCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: daemon.CmdStatus})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StatusResponseMsg{Response: resp}
	}
}

// captionsCmd loads the captions of the current or latest session from the
// daemon, so a TUI started mid-session shows what was already said.
func captionsCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Captions("", historyLimit)
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		if !resp.OK {
			return nil
		}
		return HistoryLoadedMsg{SessionID: resp.SessionID, Entries: entriesFromLines(resp.Captions), Live: true}
	}
}

func startCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: daemon.CmdStart})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StartResponseMsg{Response: resp}
	}
}

func stopCmd(client *daemon.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(daemon.Command{Cmd: daemon.CmdStop})
		if err != nil {
			return DaemonEventErrorMsg{Err: err}
		}
		return StopResponseMsg{Response: resp}
	}
}

// clearTransientErrorCmd hides a transient error after five seconds.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// reconnectCmd retries the connection, doubling the delay up to 16s.
func reconnectCmd(attempt int) tea.Cmd {
	delay := time.Duration(1<<min(attempt, 4)) * time.Second // 1s, 2s, 4s, 8s, 16s cap
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(statusEvery, func(time.Time) tea.Msg {
		return StatusTickMsg{}
	})
}

// openStoreCmd opens the SQLite store read-only. The daemon owns writes.
func openStoreCmd(path string) tea.Cmd {
	return func() tea.Msg {
		store, err := db.OpenReadOnly(path)
		if err != nil {
			return nil // the daemon creates the database on first start
		}
		return storeOpenedMsg{store: store}
	}
}

func loadSessionsCmd(store *db.Store) tea.Cmd {
	return func() tea.Msg {
		sessions, err := store.RecentSessions(sessionsLimit)
		if err != nil {
			return nil
		}
		return SessionsLoadedMsg{Sessions: sessions}
	}
}

func loadSessionCmd(store *db.Store, sessionID string) tea.Cmd {
	return func() tea.Msg {
		captions, err := store.CaptionsForSession(sessionID)
		if err != nil {
			return nil
		}
		return HistoryLoadedMsg{SessionID: sessionID, Entries: entriesFromCaptions(captions)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case DaemonConnectedMsg:
		m.client = msg.Client
		m.evClient = msg.EvClient
		m.connected = true
		m.connError = ""
		m.reconnecting = false
		m.reconnectAttempt = 0
		m.statusText = "Connected"
		cmds := []tea.Cmd{subscribeCmd(m.evClient), statusCmd(m.client), captionsCmd(m.client)}
		if m.store == nil {
			cmds = append(cmds, openStoreCmd(m.opts.DatabasePath))
		}
		return m, tea.Batch(cmds...)

	case DaemonConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.reconnecting = true
		m.statusText = "livcapd not running, retrying"
		return m, reconnectCmd(m.reconnectAttempt)

	case StatusResponseMsg:
		wasRecording := m.recording
		m.applyStatus(msg.Response)
		if m.recording && !wasRecording && m.connected {
			return m, statusTickCmd()
		}
		return m, nil

	case StatusTickMsg:
		if !m.connected || !m.recording {
			return m, nil
		}
		return m, tea.Batch(statusCmd(m.client), statusTickCmd())

	case StartResponseMsg:
		r := msg.Response
		if !r.OK {
			m.errorMessage = r.Error
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.beginSession(r.SessionID)
		m.recording = true
		m.statusText = "Recording"
		return m, statusTickCmd()

	case StopResponseMsg:
		r := msg.Response
		if !r.OK {
			m.errorMessage = r.Error
			return m, nil
		}
		m.recording = false
		m.partialText = ""
		m.realtimeTranslation = ""
		m.statusText = "Idle"
		return m, m.refreshSessions()

	case DaemonEventMsg:
		cmd := m.handleEvent(msg.Event)
		// Keep the event loop alive.
		return m, tea.Batch(cmd, readEventCmd(m.evClient))

	case DaemonEventErrorMsg:
		m.connected = false
		m.recording = false
		m.connError = msg.Err.Error()
		m.statusText = "Lost daemon, retrying"
		m.reconnecting = true
		if m.client != nil {
			m.client.Close()
			m.client = nil
		}
		if m.evClient != nil {
			m.evClient.Close()
			m.evClient = nil
		}
		return m, reconnectCmd(m.reconnectAttempt)

	case ReconnectTickMsg:
		m.reconnectAttempt++
		return m, connectCmd(m.opts.SocketPath)

	case storeOpenedMsg:
		m.store = msg.store
		return m, loadSessionsCmd(m.store)

	case SessionsLoadedMsg:
		m.sessions = msg.Sessions
		if m.selectedSession >= len(m.sessions) {
			m.selectedSession = max(0, len(m.sessions)-1)
		}
		return m, nil

	case HistoryLoadedMsg:
		if msg.Live {
			if m.viewingSession != "" {
				return m, nil
			}
			// Events that raced ahead of the history reply are kept.
			m.sessionID = msg.SessionID
			m.entries = mergeEntries(msg.Entries, m.entries)
		} else {
			m.viewingSession = msg.SessionID
			m.entries = msg.Entries
			m.transcriptLive = false
			m.transcriptScroll = 0
			return m, nil
		}
		if m.transcriptLive {
			m.scrollToBottom()
		}
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) applyStatus(r daemon.Response) {
	if r.Recording != nil {
		m.recording = *r.Recording
	}
	if r.SessionID != "" && r.SessionID != m.sessionID && m.recording {
		m.beginSession(r.SessionID)
	}
	if r.Segments != nil {
		m.captionCount = *r.Segments
	}
	if r.PendingTranslations != nil {
		m.pendingTranslations = *r.PendingTranslations
	}
	if r.Partial != "" && m.partialText == "" {
		m.partialText = r.Partial
	}
	if r.Status != "" {
		m.statusText = r.Status
	}
}

// beginSession switches the live transcript to a new recording session.
func (m *Model) beginSession(id string) {
	if id == "" || id == m.sessionID {
		return
	}
	m.sessionID = id
	m.captionCount = 0
	m.partialText = ""
	m.realtimeTranslation = ""
	if m.viewingSession == "" {
		m.entries = nil
		m.transcriptScroll = 0
	}
}

// handleEvent applies one streamed event to the transcript.
func (m *Model) handleEvent(ev daemon.Event) tea.Cmd {
	if ev.SessionID != "" && ev.SessionID != m.sessionID && ev.Event != daemon.EventStatus {
		m.beginSession(ev.SessionID)
	}

	switch ev.Event {
	case daemon.EventPartial:
		m.partialText = ev.Text
		if ev.Text == "" {
			m.realtimeTranslation = ""
		}

	case daemon.EventSegment:
		entry := TranscriptEntry{
			CaptionID: ev.CaptionID,
			Text:      ev.Text,
			Timestamp: time.Now(),
		}
		if ev.SequenceNumber != nil {
			entry.SeqNum = *ev.SequenceNumber
		}
		m.captionCount++
		m.partialText = ""
		if m.viewingSession != "" {
			return nil
		}
		m.entries = append(m.entries, entry)
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}
		if m.transcriptLive {
			m.scrollToBottom()
		}

	case daemon.EventTranslationPartial:
		m.realtimeTranslation = ev.Text

	case daemon.EventTranslation:
		m.realtimeTranslation = ""
		for i := len(m.entries) - 1; i >= 0; i-- {
			if m.entries[i].CaptionID == ev.CaptionID {
				m.entries[i].Translation = ev.Text
				break
			}
		}
		if m.transcriptLive {
			m.scrollToBottom()
		}

	case daemon.EventStatus:
		if ev.Recording != nil {
			m.recording = *ev.Recording
			if m.recording {
				m.beginSession(ev.SessionID)
				m.statusText = "Recording"
			} else {
				m.statusText = "Idle"
				m.partialText = ""
				m.realtimeTranslation = ""
				return m.refreshSessions()
			}
		}
		if ev.Message != "" {
			m.statusText = ev.Message
		}

	case daemon.EventError:
		m.errorMessage = ev.Message
		if ev.Transient != nil && *ev.Transient {
			m.errorTransient = true
			return clearTransientErrorCmd()
		}
		m.errorTransient = false
	}

	return nil
}

func (m Model) refreshSessions() tea.Cmd {
	if m.store == nil {
		return nil
	}
	return loadSessionsCmd(m.store)
}

// mergeEntries appends live entries missing from history.
func mergeEntries(history, live []TranscriptEntry) []TranscriptEntry {
	seen := make(map[string]bool, len(history))
	for _, e := range history {
		seen[e.CaptionID] = true
	}
	out := history
	for _, e := range live {
		if !seen[e.CaptionID] {
			out = append(out, e)
		}
	}
	return out
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.client != nil {
			m.client.Close()
		}
		if m.evClient != nil {
			m.evClient.Close()
		}
		if m.store != nil {
			m.store.Close()
		}
		return m, tea.Quit

	case KeySpace:
		if !m.connected {
			return m, nil
		}
		if m.recording {
			return m, stopCmd(m.client)
		}
		return m, startCmd(m.client)

	case KeyTab:
		if m.focusedPanel == FocusSessions {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusSessions
		}
		return m, nil

	case KeyJ:
		if m.focusedPanel == FocusSessions && m.selectedSession < len(m.sessions)-1 {
			m.selectedSession++
		}
		return m, nil

	case KeyK:
		if m.focusedPanel == FocusSessions && m.selectedSession > 0 {
			m.selectedSession--
		}
		return m, nil

	case KeyEnter:
		if m.focusedPanel != FocusSessions || m.selectedSession >= len(m.sessions) || m.store == nil {
			return m, nil
		}
		id := m.sessions[m.selectedSession].ID
		if id == m.sessionID && m.viewingSession == "" {
			return m, nil
		}
		return m, loadSessionCmd(m.store, id)

	case KeyLive:
		if m.viewingSession == "" {
			return m, nil
		}
		m.viewingSession = ""
		m.entries = nil
		m.transcriptLive = true
		if m.connected {
			return m, captionsCmd(m.client)
		}
		return m, nil

	case KeyToggleTranslation:
		m.showTranslation = !m.showTranslation
		if m.transcriptLive {
			m.scrollToBottom()
		}
		return m, nil

	case KeyUp:
		if m.focusedPanel == FocusTranscript {
			if m.transcriptLive {
				m.scrollToBottom()
			}
			m.transcriptLive = false
			if m.transcriptScroll > 0 {
				m.transcriptScroll--
			}
		}
		return m, nil

	case KeyDown:
		if m.focusedPanel == FocusTranscript {
			maxScroll := m.maxTranscriptScroll()
			m.transcriptScroll++
			if m.transcriptScroll >= maxScroll {
				m.transcriptScroll = maxScroll
				m.transcriptLive = m.viewingSession == ""
			}
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	total := len(m.transcriptLines(m.transcriptPanelWidth()))
	visible := m.transcriptVisibleLines() - 1 // panel header
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + error(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

func (m Model) sessionPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*25/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.sessionPanelWidth()-3)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		ui.DividerStyle.Render(strings.Repeat("─", m.width)),
		m.renderMainContent(),
		ui.DividerStyle.Render(strings.Repeat("─", m.width)),
	}
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("LIVCAP")
	id := m.sessionID
	if m.viewingSession != "" {
		id = m.viewingSession
	}
	if id == "" {
		return title
	}
	return title + ui.DimStyle.Render(" session "+shortID(id))
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.recording {
		dot = ui.RecordingDotStyle.Render("● REC")
	} else {
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	status := "  " + ui.DimStyle.Render(m.statusText)
	if m.recording || m.captionCount > 0 {
		status += ui.DimStyle.Render(fmt.Sprintf("  %d captions", m.captionCount))
	}

	var pending string
	if m.pendingTranslations > 0 {
		pending = "  " + ui.SpinnerStyle.Render(fmt.Sprintf("⟳ translating %d", m.pendingTranslations))
	}

	return dot + status + pending
}

func (m Model) renderMainContent() string {
	sessionW := m.sessionPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	sessionLines := strings.Split(m.renderSessionPanel(sessionW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(transcriptW, contentH), "\n")
	divider := ui.DividerStyle.Render("│")

	rows := make([]string, 0, contentH)
	for i := 0; i < contentH; i++ {
		sl := strings.Repeat(" ", sessionW)
		if i < len(sessionLines) {
			sl = sessionLines[i]
		}
		tr := ""
		if i < len(transcriptLines) {
			tr = transcriptLines[i]
		}
		rows = append(rows, sl+divider+tr)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderSessionPanel(width, height int) string {
	title := fmt.Sprintf("SESSIONS (%d)", len(m.sessions))
	var header string
	if m.focusedPanel == FocusSessions {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header}
	if len(m.sessions) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No sessions yet"))
	} else {
		for i, s := range m.sessions {
			label := shortTime(s.StartedAt)
			if s.Title != "" {
				label += " " + s.Title
			}
			marker := " "
			switch {
			case s.Status == db.StatusActive:
				marker = "●"
			case s.ID == m.viewingSession:
				marker = "▸"
			}

			line := truncateToWidth(marker+" "+label, width-2)
			if i == m.selectedSession && m.focusedPanel == FocusSessions {
				line = ui.SelectedStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			lines = append(lines, line)
		}
	}

	if len(lines) > height {
		// Keep the selection visible.
		start := min(max(0, m.selectedSession+2-height), len(lines)-height)
		lines = append([]string{header}, lines[start+1:start+height]...)
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

// transcriptLines builds the wrapped display lines of the transcript:
// each caption followed by its translation, then the live residual.
func (m Model) transcriptLines(width int) []string {
	// Prefix: "[HH:MM:SS] " = 11 chars visible
	const prefixWidth = 11
	textWidth := max(10, width-prefixWidth-2) // -2 for leading indent
	indent := strings.Repeat(" ", prefixWidth)

	var out []string
	for _, e := range m.entries {
		ts := ui.TimestampStyle.Render(e.Timestamp.Format("[15:04:05]"))
		wrapped := wrapText(e.Text, textWidth)
		out = append(out, ts+" "+wrapped[0])
		for _, wl := range wrapped[1:] {
			out = append(out, indent+wl)
		}
		if m.showTranslation && e.Translation != "" {
			for _, wl := range wrapText(e.Translation, textWidth) {
				out = append(out, indent+ui.TranslationStyle.Render(wl))
			}
		}
	}

	if m.viewingSession == "" && m.partialText != "" {
		wrapped := wrapText(m.partialText+"▌", textWidth)
		ts := ui.TimestampStyle.Render(time.Now().Format("[15:04:05]"))
		out = append(out, ts+" "+ui.PartialTextStyle.Render(wrapped[0]))
		for _, wl := range wrapped[1:] {
			out = append(out, indent+ui.PartialTextStyle.Render(wl))
		}
		if m.showTranslation && m.realtimeTranslation != "" {
			for _, wl := range wrapText(m.realtimeTranslation, textWidth) {
				out = append(out, indent+ui.RealtimeTranslationStyle.Render(wl))
			}
		}
	}
	return out
}

func (m Model) renderTranscriptPanel(width, height int) string {
	var badge string
	switch {
	case m.viewingSession != "":
		badge = ui.HistoryBadgeStyle.Render(" HISTORY")
	case m.transcriptLive:
		badge = ui.LiveBadgeStyle.Render(" LIVE")
	default:
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}

	var header string
	if m.focusedPanel == FocusTranscript {
		header = ui.PanelTitleActiveStyle.Render("CAPTIONS") + badge
	} else {
		header = ui.PanelTitleStyle.Render("CAPTIONS") + badge
	}

	lines := []string{header}
	contentHeight := height - 1

	display := m.transcriptLines(width)
	switch {
	case !m.connected && m.viewingSession == "":
		if m.reconnecting {
			lines = append(lines, "", ui.ErrorTextStyle.Render("  Daemon disconnected. Reconnecting..."))
			lines = append(lines, ui.DimStyle.Render("  Start with: livcapd"))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Connecting to livcapd..."))
		}
	case len(display) == 0:
		lines = append(lines, "")
		if m.viewingSession != "" {
			lines = append(lines, ui.DimStyle.Render("  No captions in this session"))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Press Space to start recording"))
		}
	default:
		start := m.transcriptScroll
		if m.transcriptLive {
			start = len(display) - contentHeight
		}
		start = max(0, min(start, len(display)-1))
		end := min(start+contentHeight, len(display))
		for _, l := range display[start:end] {
			lines = append(lines, "  "+l)
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	if m.connected {
		if m.recording {
			parts = append(parts, key("Space", "Stop"))
		} else {
			parts = append(parts, key("Space", "Record"))
		}
	}
	if m.showTranslation {
		parts = append(parts, key("t", "Hide translation"))
	} else {
		parts = append(parts, key("t", "Show translation"))
	}
	parts = append(parts, key("Tab", "Focus"), key("j/k", "Sessions"), key("Enter", "Open"))
	if m.viewingSession != "" {
		parts = append(parts, key("l", "Live"))
	}
	parts = append(parts, key("↑↓", "Scroll"), key("q", "Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func padRight(s string, width int) string {
		visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current []rune
		for _, word := range strings.Fields(paragraph) {
			w := []rune(word)
			// Unspaced scripts (CJK) arrive as one long field.
			for len(w) > width {
				if len(current) > 0 {
					lines = append(lines, string(current))
					current = nil
				}
				lines = append(lines, string(w[:width]))
				w = w[width:]
			}
			switch {
			case len(current) == 0:
				current = w
			case len(current)+1+len(w) <= width:
				current = append(append(current, ' '), w...)
			default:
				lines = append(lines, string(current))
				current = w
			}
		}
		lines = append(lines, string(current))
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
