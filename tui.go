package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voicenotes/apperr"
	"voicenotes/audio"
	"voicenotes/clipboard"
	"voicenotes/generator"
	"voicenotes/log"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recorder"
	"voicenotes/settings"
)

type view int

const (
	viewList view = iota
	viewRecord
	viewDetail
	viewSettings
)

// Results of commands the TUI runs off the update loop.
type (
	tickMsg        time.Time
	startDoneMsg   struct{ Err error }
	transcribedMsg struct {
		Note notes.Note
		Err  error
	}
	generatedMsg struct {
		Note notes.Note
		Err  error
	}
	deletedMsg    struct{ Err error }
	discardedMsg  struct{ Err error }
	copiedMsg     struct{ Err error }
	tokenSavedMsg struct{ Err error }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	aiLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)

	meterColors = []lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type tuiModel struct {
	ctx  context.Context
	app  *app
	sink *sink

	view          view
	width, height int

	notes         []notes.Note
	cursor        int
	detailID      string
	confirmDelete bool

	recState     recorder.State
	elapsed      time.Duration
	level        float64
	silence      *silenceMonitor
	transcribing bool
	recErr       error

	status    string
	statusErr bool

	tokenInput []rune
}

func newTUIModel(ctx context.Context, a *app, s *sink) tuiModel {
	m := tuiModel{
		ctx:      ctx,
		app:      a,
		sink:     s,
		notes:    a.store.List(),
		recState: recorder.Idle{},
		silence:  newSilenceMonitor(),
	}
	if !a.settings.HasToken() {
		m.view = viewSettings
		m.setStatus("Set an API token to start recording.", true)
	}
	return m
}

func tuiTick() tea.Cmd {
	return tea.Tick(meterInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m *tuiModel) setStatus(s string, isErr bool) {
	m.status, m.statusErr = s, isErr
}

func (m *tuiModel) refresh() {
	m.notes = m.app.store.List()
	if m.cursor >= len(m.notes) {
		m.cursor = max(len(m.notes)-1, 0)
	}
}

func (m tuiModel) detailNote() (notes.Note, bool) {
	for _, n := range m.notes {
		if n.ID == m.detailID {
			return n, true
		}
	}
	return notes.Note{}, false
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		if _, ok := m.recState.(recorder.Recording); ok {
			lvl := m.sink.CurrentLevel()
			m.level = m.level*0.6 + lvl*0.4
			if ev := m.silence.Tick(lvl); ev == silenceWarn {
				log.Warn("no voice detected")
			}
		} else {
			m.level = 0
		}
		return m, tuiTick()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case recorderStateMsg:
		if _, ok := msg.State.(recorder.Recording); ok {
			if _, was := m.recState.(recorder.Recording); !was {
				m.elapsed, m.recErr = 0, nil
				m.silence.Reset()
			}
		}
		m.recState = msg.State

	case recorderTickMsg:
		m.elapsed = msg.Elapsed

	case transcribingMsg:
		m.transcribing, m.recErr = true, nil

	case transcriptionFailedMsg:
		m.transcribing, m.recErr = false, msg.Err

	case noteCreatedMsg:
		m.transcribing, m.recErr = false, nil
		m.refresh()
		m.view, m.cursor = viewList, 0
		m.setStatus("Note saved.", false)

	case noteDeletedMsg:
		m.refresh()
		if m.detailID == msg.ID {
			m.view, m.detailID = viewList, ""
		}
		m.setStatus("Note deleted.", false)

	case generationStartedMsg:
		m.setStatus("Running "+msg.Task.String()+"...", false)

	case generationFinishedMsg:
		m.refresh()
		m.setStatus("", false)

	case generationFailedMsg:
		m.refresh()
		m.setStatus(apperr.Message(msg.Err), true)

	case startDoneMsg:
		switch {
		case msg.Err == nil:
		case errors.Is(msg.Err, apperr.ErrMissingCredential):
			m.view = viewSettings
			m.setStatus(apperr.Message(msg.Err), true)
		case errors.Is(msg.Err, recorder.ErrClipPending):
			m.setStatus("Retry or discard the last recording first.", true)
		default:
			m.recErr = msg.Err
		}

	case transcribedMsg:
		if errors.Is(msg.Err, pipeline.ErrTranscriptionInFlight) {
			m.setStatus("Still transcribing the last recording.", true)
		}

	case generatedMsg:
		if errors.Is(msg.Err, pipeline.ErrGenerationInFlight) || errors.Is(msg.Err, notes.ErrNotFound) {
			m.setStatus(msg.Err.Error(), true)
		}

	case deletedMsg:
		if msg.Err != nil {
			m.setStatus("Delete failed: "+msg.Err.Error(), true)
		}

	case discardedMsg:
		if msg.Err != nil {
			m.setStatus(msg.Err.Error(), true)
		} else {
			m.recErr = nil
		}

	case copiedMsg:
		if msg.Err != nil {
			m.setStatus("Copy failed: "+msg.Err.Error(), true)
		} else {
			m.setStatus("Copied to clipboard.", false)
		}

	case tokenSavedMsg:
		if msg.Err != nil {
			m.setStatus("Saving token failed: "+msg.Err.Error(), true)
		} else {
			m.tokenInput = nil
			m.view = viewList
			m.setStatus("Token saved.", false)
		}
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.view {
	case viewList:
		return m.listKey(key)
	case viewRecord:
		return m.recordKey(key)
	case viewDetail:
		return m.detailKey(key)
	case viewSettings:
		return m.settingsKey(msg)
	}
	return m, nil
}

func (m tuiModel) listKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = min(m.cursor+1, max(len(m.notes)-1, 0))
	case "enter":
		if len(m.notes) > 0 {
			m.view = viewDetail
			m.detailID = m.notes[m.cursor].ID
			m.confirmDelete = false
			m.setStatus("", false)
		}
	case "r":
		m.view = viewRecord
		m.setStatus("", false)
		if _, ok := m.recState.(recorder.Idle); ok {
			return m, m.startCmd()
		}
	case "s":
		m.view = viewSettings
		m.tokenInput = nil
		m.setStatus("", false)
	}
	return m, nil
}

func (m tuiModel) recordKey(key string) (tea.Model, tea.Cmd) {
	switch m.recState.(type) {
	case recorder.Idle:
		switch key {
		case " ", "space", "enter", "r":
			return m, m.startCmd()
		case "esc", "q":
			m.view = viewList
		}
	case recorder.Recording:
		switch key {
		case " ", "space", "enter":
			return m, m.stopCmd()
		case "esc":
			m.view = viewList
			return m, m.discardCmd()
		}
	case recorder.Stopped:
		if m.transcribing {
			return m, nil
		}
		switch key {
		case "r":
			return m, m.retryCmd()
		case "d":
			return m, m.discardCmd()
		case "esc", "q":
			m.view = viewList
		}
	case recorder.Denied:
		switch key {
		case "r":
			// Discard clears the denial so the next Start asks again.
			p, ctx := m.app.pipe, m.ctx
			return m, func() tea.Msg {
				if err := p.Discard(); err != nil {
					return discardedMsg{Err: err}
				}
				return startDoneMsg{Err: p.Start(ctx)}
			}
		case "esc", "q":
			m.view = viewList
		}
	}
	return m, nil
}

func (m tuiModel) detailKey(key string) (tea.Model, tea.Cmd) {
	n, ok := m.detailNote()
	if !ok {
		m.view = viewList
		return m, nil
	}
	if m.confirmDelete {
		m.confirmDelete = false
		if key == "y" {
			return m, m.deleteCmd(n.ID)
		}
		return m, nil
	}
	switch key {
	case "esc", "q":
		m.view = viewList
		m.setStatus("", false)
	case "1", "2", "3", "4":
		task := generator.Tasks()[key[0]-'1']
		return m, m.generateCmd(n.ID, task)
	case "c":
		text := n.Content
		if n.AI != nil {
			text = n.AI.Response
		}
		return m, copyCmd(text)
	case "d":
		m.confirmDelete = true
	}
	return m, nil
}

func (m tuiModel) settingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.tokenInput = nil
		m.view = viewList
		m.setStatus("", false)
	case tea.KeyEnter:
		return m, m.saveTokenCmd(string(m.tokenInput))
	case tea.KeyBackspace:
		if len(m.tokenInput) > 0 {
			m.tokenInput = m.tokenInput[:len(m.tokenInput)-1]
		}
	case tea.KeyCtrlU:
		m.tokenInput = nil
	case tea.KeyRunes, tea.KeySpace:
		m.tokenInput = append(m.tokenInput, msg.Runes...)
	}
	return m, nil
}

func (m tuiModel) startCmd() tea.Cmd {
	p, ctx := m.app.pipe, m.ctx
	return func() tea.Msg { return startDoneMsg{Err: p.Start(ctx)} }
}

func (m tuiModel) stopCmd() tea.Cmd {
	p, ctx := m.app.pipe, m.ctx
	return func() tea.Msg {
		n, err := p.Stop(ctx)
		return transcribedMsg{Note: n, Err: err}
	}
}

func (m tuiModel) retryCmd() tea.Cmd {
	p, ctx := m.app.pipe, m.ctx
	return func() tea.Msg {
		n, err := p.Retry(ctx)
		return transcribedMsg{Note: n, Err: err}
	}
}

func (m tuiModel) discardCmd() tea.Cmd {
	p := m.app.pipe
	return func() tea.Msg { return discardedMsg{Err: p.Discard()} }
}

func (m tuiModel) generateCmd(id string, task generator.Task) tea.Cmd {
	p, ctx := m.app.pipe, m.ctx
	return func() tea.Msg {
		n, err := p.Generate(ctx, id, task)
		return generatedMsg{Note: n, Err: err}
	}
}

func (m tuiModel) deleteCmd(id string) tea.Cmd {
	p, ctx := m.app.pipe, m.ctx
	return func() tea.Msg { return deletedMsg{Err: p.Delete(ctx, id)} }
}

func (m tuiModel) saveTokenCmd(token string) tea.Cmd {
	st := m.app.settings
	return func() tea.Msg {
		return tokenSavedMsg{Err: st.Save(settings.Settings{APIToken: token})}
	}
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		err := clipboard.Copy(text)
		if err != nil {
			log.Warnf("clipboard: %v", err)
		}
		return copiedMsg{Err: err}
	}
}

func (m tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("voicenotes") + dimStyle.Render(fmt.Sprintf("  %d notes", len(m.notes))) + "\n\n")

	var body, help string
	switch m.view {
	case viewList:
		body, help = m.listView()
	case viewRecord:
		body, help = m.recordView()
	case viewDetail:
		body, help = m.detailView()
	case viewSettings:
		body, help = m.settingsView()
	}
	b.WriteString(body)
	b.WriteString("\n")
	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errStyle
		}
		b.WriteString(style.Render(m.status) + "\n")
	}
	b.WriteString(help)
	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}

func (m tuiModel) listView() (string, string) {
	help := renderHelp("r", "record", "enter", "open", "s", "settings", "q", "quit")
	if len(m.notes) == 0 {
		return dimStyle.Render("No notes yet. Press r to record one.") + "\n", help
	}
	var b strings.Builder
	textWidth := max(m.width-24, 10)
	for i, n := range m.notes {
		marker := dimStyle.Render("○")
		if n.Processed() {
			marker = okStyle.Render("●")
		}
		line := fmt.Sprintf("%s  %s", n.CreatedAt.Local().Format("Jan 02 15:04"), truncate(firstLine(n.Content), textWidth))
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("▶ ") + marker + " " + selectedStyle.Render(line) + "\n")
		} else {
			b.WriteString("  " + marker + " " + line + "\n")
		}
	}
	return b.String(), help
}

func (m tuiModel) recordView() (string, string) {
	var b strings.Builder
	b.WriteString(dimStyle.Render(deviceLineText(m.app.deviceName())) + "\n\n")

	var help string
	switch st := m.recState.(type) {
	case recorder.Idle:
		if m.recErr != nil {
			b.WriteString(errStyle.Render(apperr.Message(m.recErr)) + "\n")
		}
		b.WriteString(dimStyle.Render("○ ready") + "\n")
		help = renderHelp("space", "record", "esc", "back")
	case recorder.RequestingPermission:
		b.WriteString(warnStyle.Render("Requesting microphone access...") + "\n")
		help = renderHelp("ctrl+c", "quit")
	case recorder.Recording:
		b.WriteString(recStyle.Render("● REC "+formatElapsed(m.elapsed)) + "\n")
		b.WriteString(renderMeter(m.level, 30) + "\n")
		if m.silence.Warned() {
			b.WriteString(warnStyle.Render("⚠ no voice detected") + "\n")
		}
		help = renderHelp("space", "stop", "esc", "cancel")
	case recorder.Stopped:
		b.WriteString(dimStyle.Render(fmt.Sprintf("%s recorded, %.1f KB %s", formatElapsed(st.Clip.Duration), float64(len(st.Clip.Data))/1024, st.Clip.Format)) + "\n")
		switch {
		case m.transcribing:
			b.WriteString(warnStyle.Render("Transcribing...") + "\n")
			help = renderHelp("ctrl+c", "quit")
		case m.recErr != nil:
			b.WriteString(errStyle.Render(apperr.Message(m.recErr)) + "\n")
			help = renderHelp("r", "retry", "d", "discard", "esc", "back")
		default:
			help = renderHelp("r", "transcribe", "d", "discard", "esc", "back")
		}
	case recorder.Denied:
		b.WriteString(errStyle.Render(apperr.Message(st.Err)) + "\n")
		b.WriteString(dimStyle.Render("Allow microphone access, then try again.") + "\n")
		help = renderHelp("r", "ask again", "esc", "back")
	}
	return b.String(), help
}

func (m tuiModel) detailView() (string, string) {
	n, ok := m.detailNote()
	if !ok {
		return dimStyle.Render("Note not found.") + "\n", renderHelp("esc", "back")
	}
	width := max(m.width-2, 20)
	var b strings.Builder
	b.WriteString(dimStyle.Render(n.CreatedAt.Local().Format("Mon Jan 02 2006 15:04")) + "\n\n")
	for _, line := range wrapText(n.Content, width) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(strings.Repeat("─", min(width, 40))) + "\n")

	if task, busy := m.app.pipe.Generating(n.ID); busy {
		b.WriteString(warnStyle.Render("Running "+task.String()+"...") + "\n")
	}
	if n.AI != nil {
		b.WriteString(aiLabelStyle.Render(n.AI.PromptType) + "\n")
		for _, line := range wrapText(n.AI.Response, width) {
			b.WriteString(line + "\n")
		}
	}
	if f := n.AIFailure; f != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("%s failed: %s", f.PromptType, f.Message)) + "\n")
	}

	if m.confirmDelete {
		return b.String(), warnStyle.Render("Delete this note? y/n")
	}
	var pairs []string
	for i, t := range generator.Tasks() {
		pairs = append(pairs, fmt.Sprint(i+1), t.String())
	}
	pairs = append(pairs, "c", "copy", "d", "delete", "esc", "back")
	return b.String(), renderHelp(pairs...)
}

func (m tuiModel) settingsView() (string, string) {
	var b strings.Builder
	b.WriteString("API token: " + settings.Mask(m.app.settings.Token()) + "\n\n")
	input := ""
	if len(m.tokenInput) > 0 {
		input = settings.Mask(string(m.tokenInput))
	}
	b.WriteString("New token: " + input + "█\n")
	return b.String(), renderHelp("enter", "save", "ctrl+u", "clear", "esc", "back")
}

func renderHelp(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, keyStyle.Render(pairs[i])+helpStyle.Render(" "+pairs[i+1]))
	}
	return strings.Join(parts, helpStyle.Render("  ·  "))
}

func deviceLineText(name string) string {
	suffix := ""
	if audio.IsBluetooth(name) {
		suffix = " (BT!)"
	}
	return "mic: " + name + suffix
}

func formatElapsed(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// renderMeter draws level as a bar of width cells. RMS speech sits well
// below 0.1, so the scale is stretched.
func renderMeter(level float64, width int) string {
	filled := int(min(level*10, 1) * float64(width))
	var b strings.Builder
	for i := range width {
		if i >= filled {
			b.WriteString(dimStyle.Render("░"))
			continue
		}
		style := meterColors[min(i*len(meterColors)/width, len(meterColors)-1)]
		b.WriteString(style.Render("█"))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:max(width-1, 0)]) + "…"
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		r := []rune(para)
		for len(r) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if r[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(r[:splitAt]))
			r = []rune(strings.TrimLeft(string(r[splitAt:]), " "))
		}
		lines = append(lines, string(r))
	}
	return lines
}
