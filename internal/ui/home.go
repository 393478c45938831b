package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/shell-deck/internal/clipboard"
	"github.com/asheshgoplani/shell-deck/internal/logging"
	"github.com/asheshgoplani/shell-deck/internal/session"
)

var uiLog = logging.ForComponent(logging.CompUI)

// Controller is the part of session.Controller the UI drives.
type Controller interface {
	Submit(text string) bool
	SubmitInput(line string) bool
	Refresh() session.Update
	Shortcuts() []session.Shortcut
	Done() <-chan struct{}
}

// Options configures Home.
type Options struct {
	// History seeds the command line history, most recent first.
	History []string
	// HistoryLimit caps the in-memory history, 0 = unbounded.
	HistoryLimit int
	ShowButtons  bool
	// WatchSystemTheme follows OS dark mode changes.
	WatchSystemTheme bool
	// Copy puts text on the clipboard; nil uses the system clipboard.
	Copy func(text string) (*clipboard.CopyResult, error)
}

// ConfigReloadedMsg is sent by the config watcher after config.toml changed.
// Shortcuts are read back from the controller; Theme, when set, is applied.
type ConfigReloadedMsg struct {
	Theme       string
	ShowButtons bool
}

// sessionDoneMsg is delivered once the interpreter has exited.
type sessionDoneMsg struct{}

type copyResultMsg struct {
	result *clipboard.CopyResult
	err    error
}

// Home is the single-session terminal UI: scrollback, shortcut buttons and
// a command line.
type Home struct {
	ctrl      Controller
	refresher *Refresher

	ctx          context.Context
	cancel       context.CancelFunc
	themeWatcher *ThemeWatcher

	width, height int
	ready         bool

	viewport viewport.Model
	input    textinput.Model

	last    session.Update
	content string // sanitized output, unwrapped
	follow  bool   // jump to bottom on next refresh

	history      []string // most recent first
	historyLimit int
	historyPos   int // -1 while editing a new line
	draft        string

	completions []string
	completePos int

	showButtons bool
	flash       string

	copy func(text string) (*clipboard.CopyResult, error)
}

// NewHome creates the UI model.
func NewHome(ctrl Controller, refresher *Refresher, opts Options) *Home {
	ctx, cancel := context.WithCancel(context.Background())

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "type a command"
	ti.PromptStyle = InputPromptStyle
	ti.Focus()

	h := &Home{
		ctrl:         ctrl,
		refresher:    refresher,
		ctx:          ctx,
		cancel:       cancel,
		viewport:     viewport.New(0, 0),
		input:        ti,
		history:      append([]string(nil), opts.History...),
		historyLimit: opts.HistoryLimit,
		historyPos:   -1,
		showButtons:  opts.ShowButtons,
		follow:       true,
		copy:         opts.Copy,
	}
	if h.copy == nil {
		h.copy = clipboard.New(true).Copy
	}
	h.viewport.MouseWheelEnabled = true
	if opts.WatchSystemTheme {
		h.themeWatcher = NewThemeWatcher(ctx)
	}
	return h
}

// Close releases background watchers. Call after the program exits.
func (h *Home) Close() {
	if h.themeWatcher != nil {
		h.themeWatcher.Close()
	}
	h.cancel()
}

// Init starts the output, exit and theme listeners.
func (h *Home) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		listenForOutput(h.refresher),
		waitForExit(h.ctrl),
	}
	if h.themeWatcher != nil {
		cmds = append(cmds, listenForThemeChanges(h.themeWatcher))
	}
	return tea.Batch(cmds...)
}

func waitForExit(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		<-ctrl.Done()
		return sessionDoneMsg{}
	}
}

// Update handles a message.
func (h *Home) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h.width = msg.Width
		h.height = msg.Height
		h.ready = true
		h.updateSizes()
		return h, nil

	case outputMsg:
		h.apply(h.ctrl.Refresh())
		return h, listenForOutput(h.refresher)

	case sessionDoneMsg:
		// Drain the final output so the last frame is complete.
		h.apply(h.ctrl.Refresh())
		uiLog.Debug("session_done")
		return h, tea.Quit

	case themeChangedMsg:
		InitTheme(themeName(msg.dark))
		h.input.PromptStyle = h.promptStyle()
		return h, listenForThemeChanges(h.themeWatcher)

	case ConfigReloadedMsg:
		if msg.Theme != "" {
			InitTheme(msg.Theme)
			h.input.PromptStyle = h.promptStyle()
		}
		h.showButtons = msg.ShowButtons
		h.updateSizes()
		return h, nil

	case copyResultMsg:
		if msg.err != nil {
			h.flash = "copy failed: " + msg.err.Error()
			uiLog.Warn("clipboard_copy_failed", slog.String("error", msg.err.Error()))
		} else {
			h.flash = fmt.Sprintf("copied %d lines (%s)", msg.result.LineCount, msg.result.Method)
		}
		return h, nil

	case tea.KeyMsg:
		return h.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		h.viewport, cmd = h.viewport.Update(msg)
		return h, cmd
	}

	var cmd tea.Cmd
	h.input, cmd = h.input.Update(msg)
	return h, cmd
}

func (h *Home) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	h.flash = ""
	key := msg.String()

	if key != "tab" {
		h.completions = nil
	}

	switch key {
	case "ctrl+c":
		return h, tea.Quit
	case "ctrl+d":
		if h.input.Value() == "" {
			return h, tea.Quit
		}
	case "enter":
		h.submitLine()
		return h, nil
	case "up":
		h.historyPrev()
		return h, nil
	case "down":
		h.historyNext()
		return h, nil
	case "tab":
		h.complete()
		return h, nil
	case "pgup":
		h.viewport.PageUp()
		return h, nil
	case "pgdown":
		h.viewport.PageDown()
		return h, nil
	case "shift+up":
		h.viewport.ScrollUp(1)
		return h, nil
	case "shift+down":
		h.viewport.ScrollDown(1)
		return h, nil
	case "ctrl+y":
		return h, h.copyScrollback()
	case "ctrl+home":
		h.viewport.GotoTop()
		return h, nil
	case "ctrl+end":
		h.viewport.GotoBottom()
		return h, nil
	}

	if idx, ok := functionKeyIndex(key); ok {
		h.runShortcut(idx)
		return h, nil
	}

	var cmd tea.Cmd
	h.input, cmd = h.input.Update(msg)
	return h, cmd
}

// functionKeyIndex maps "f1".."f12" to 0..11.
func functionKeyIndex(key string) (int, bool) {
	if !strings.HasPrefix(key, "f") || len(key) < 2 || len(key) > 3 {
		return 0, false
	}
	n := 0
	for _, r := range key[1:] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > session.MaxShortcuts {
		return 0, false
	}
	return n - 1, true
}

func (h *Home) submitLine() {
	line := h.input.Value()
	if !h.ctrl.SubmitInput(line) {
		h.flash = h.rejectReason()
		return
	}
	h.remember(line)
	h.input.Reset()
	h.follow = true
}

func (h *Home) runShortcut(idx int) {
	shortcuts := h.ctrl.Shortcuts()
	if idx >= len(shortcuts) {
		return
	}
	if !h.ctrl.Submit(shortcuts[idx].Command) {
		h.flash = h.rejectReason()
		return
	}
	h.follow = true
}

// copyScrollback copies the rendered output, as shown, to the clipboard.
func (h *Home) copyScrollback() tea.Cmd {
	text := h.content
	if strings.TrimSpace(text) == "" {
		h.flash = "nothing to copy"
		return nil
	}
	copyFn := h.copy
	return func() tea.Msg {
		res, err := copyFn(text)
		return copyResultMsg{result: res, err: err}
	}
}

func (h *Home) rejectReason() string {
	if h.last.State == session.StateExited {
		return "interpreter has exited"
	}
	return "busy: wait for the prompt"
}

func (h *Home) remember(line string) {
	h.historyPos = -1
	h.draft = ""
	if strings.TrimSpace(line) == "" {
		return
	}
	out := make([]string, 0, len(h.history)+1)
	out = append(out, line)
	for _, e := range h.history {
		if e != line {
			out = append(out, e)
		}
	}
	if h.historyLimit > 0 && len(out) > h.historyLimit {
		out = out[:h.historyLimit]
	}
	h.history = out
}

func (h *Home) historyPrev() {
	if h.historyPos+1 >= len(h.history) {
		return
	}
	if h.historyPos == -1 {
		h.draft = h.input.Value()
	}
	h.historyPos++
	h.input.SetValue(h.history[h.historyPos])
	h.input.CursorEnd()
}

func (h *Home) historyNext() {
	if h.historyPos < 0 {
		return
	}
	h.historyPos--
	if h.historyPos == -1 {
		h.input.SetValue(h.draft)
	} else {
		h.input.SetValue(h.history[h.historyPos])
	}
	h.input.CursorEnd()
}

// complete cycles through aliases and history lines matching the current
// input. Aliases rank ahead of history.
func (h *Home) complete() {
	if len(h.completions) > 0 && h.input.Value() == h.completions[h.completePos] {
		h.completePos = (h.completePos + 1) % len(h.completions)
		h.input.SetValue(h.completions[h.completePos])
		h.input.CursorEnd()
		return
	}

	query := h.input.Value()
	if strings.TrimSpace(query) == "" {
		return
	}
	seen := make(map[string]bool)
	var candidates []string
	for _, s := range session.FuzzyFindShortcuts(h.ctrl.Shortcuts(), query) {
		if s.Alias != "" && !seen[s.Alias] {
			seen[s.Alias] = true
			candidates = append(candidates, s.Alias)
		}
	}
	for _, line := range session.FuzzyFindHistory(h.history, query) {
		if !seen[line] {
			seen[line] = true
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		h.flash = "no completions"
		return
	}
	h.completions = candidates
	h.completePos = 0
	h.input.SetValue(candidates[0])
	h.input.CursorEnd()
}

// apply renders a refresh result. The view only follows new output when it
// was already at the bottom or the user just submitted something.
func (h *Home) apply(u session.Update) {
	atBottom := h.viewport.AtBottom()
	h.last = u
	h.content = sanitizeOutput(u.Text)
	h.viewport.SetContent(wrapLines(h.content, h.viewport.Width))
	if atBottom || h.follow {
		h.viewport.GotoBottom()
		h.follow = false
	}
	h.input.PromptStyle = h.promptStyle()
	if u.Running {
		h.input.Prompt = "… "
	} else {
		h.input.Prompt = "> "
	}
}

func (h *Home) promptStyle() lipgloss.Style {
	themeMu.RLock()
	defer themeMu.RUnlock()
	if h.last.Running {
		return InputBusyStyle
	}
	return InputPromptStyle
}

func (h *Home) buttonsVisible() bool {
	return h.showButtons && len(h.ctrl.Shortcuts()) > 0
}

// updateSizes lays out header (1), scrollback, buttons (0/1), input (1) and
// help (1).
func (h *Home) updateSizes() {
	if !h.ready {
		return
	}
	chrome := 3
	if h.buttonsVisible() {
		chrome++
	}
	vh := h.height - chrome
	if vh < 1 {
		vh = 1
	}
	atBottom := h.viewport.AtBottom()
	h.viewport.Width = h.width
	h.viewport.Height = vh
	h.viewport.SetContent(wrapLines(h.content, h.width))
	if atBottom {
		h.viewport.GotoBottom()
	}
	h.input.Width = h.width - runewidth.StringWidth(h.input.Prompt) - 1
}

// View renders the model.
func (h *Home) View() string {
	if !h.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(h.renderHeader())
	b.WriteByte('\n')
	b.WriteString(h.viewport.View())
	b.WriteByte('\n')
	if h.buttonsVisible() {
		b.WriteString(renderButtonBar(h.ctrl.Shortcuts(), h.width))
		b.WriteByte('\n')
	}
	b.WriteString(h.input.View())
	b.WriteByte('\n')
	b.WriteString(h.renderHelp())
	return b.String()
}

func (h *Home) renderHeader() string {
	themeMu.RLock()
	title := TitleStyle.Render("shell-deck")
	themeMu.RUnlock()
	badge := StatusIndicator(h.last)

	used := lipgloss.Width(title) + 1 + lipgloss.Width(badge) + 1
	dir := truncateLeft(h.last.WorkingDir, h.width-used)

	themeMu.RLock()
	defer themeMu.RUnlock()
	return title + " " + badge + " " + DimStyle.Render(dir)
}

func (h *Home) renderHelp() string {
	themeMu.RLock()
	defer themeMu.RUnlock()
	if h.flash != "" {
		return WarningStyle.Render(h.flash)
	}
	help := "enter run · ↑/↓ history · tab complete · pgup/pgdn scroll · ctrl+y copy · ctrl+c quit"
	return DimStyle.Render(runewidth.Truncate(help, h.width, "…"))
}
