package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/asheshgoplani/shell-deck/internal/logging"
	"github.com/asheshgoplani/shell-deck/internal/platform"
	"github.com/asheshgoplani/shell-deck/internal/scrollback"
	"github.com/asheshgoplani/shell-deck/internal/shell"
)

var sessionLog = logging.ForComponent(logging.CompSession)

var (
	// ErrNotRunning is returned for operations that need a live interpreter.
	ErrNotRunning = errors.New("session: interpreter not running")

	// ErrAlreadyStarted is returned by a second Start. Sessions are not
	// restartable; create a new Controller instead.
	ErrAlreadyStarted = errors.New("session: already started")
)

// closeTimeout bounds how long Close waits for the teardown after killing
// the interpreter.
const closeTimeout = 3 * time.Second

// drainTimeout is how long output may keep flowing after the interpreter
// exited before the streams are closed under a child still holding them.
const drainTimeout = 500 * time.Millisecond

// State is the lifecycle state of the interpreter.
type State int

const (
	StateNotStarted State = iota
	StateIdle             // at its prompt, accepting input
	StateBusy             // running a command
	StateExited
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateExited:
		return "exited"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Command is one submitted line.
type Command struct {
	ID         int64 // history row, 0 when not recorded
	Text       string
	StartedAt  time.Time
	FinishedAt time.Time
	HasErrors  bool
}

// Update is what the UI renders after a refresh.
type Update struct {
	Text        string
	Total       int // runes appended since Start; Text is the tail of them
	Running     bool
	HasErrors   bool
	State       State
	WorkingDir  string
	LastCommand *Command // copy; nil before the first submit
}

// Sink receives every Update produced by Refresh.
type Sink func(Update)

// Launcher starts the interpreter. shell.Start in production.
type Launcher func(opts shell.Options) (shell.Interpreter, error)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Shell is how to launch the interpreter. Shell.Dir, when set, is used
	// as the start directory ahead of the persisted one.
	Shell shell.Options

	Detector        *shell.PromptDetector // nil = default ">" detector
	ScrollbackLimit int                   // runes rendered, 0 = scrollback.DefaultLimit
	RetainBytes     int                   // 0 = unbounded
	ReadSize        int                   // 0 = shell.DefaultReadSize

	// Schedule hands a refresh to the render goroutine without waiting for
	// it. The render goroutine then calls Refresh.
	Schedule func()

	Launch        Launcher
	Shortcuts     []Shortcut
	RecordHistory bool
}

// Controller owns one interpreter session: its process, output buffer and
// idle/busy state.
type Controller struct {
	cfg   ControllerConfig
	store Store
	sink  Sink
	id    string

	done chan struct{}

	mu          sync.Mutex
	state       State
	proc        shell.Interpreter
	notifier    *scrollback.Notifier
	lastCommand *Command
	submitMark  int // runes appended before the last submit
	workingDir  string
	shortcuts   []Shortcut
	exitErr     error
	closed      bool // Close killed the interpreter
}

// NewController creates a controller. store and sink may be nil.
func NewController(cfg ControllerConfig, store Store, sink Sink) *Controller {
	if cfg.Detector == nil {
		cfg.Detector = &shell.PromptDetector{Terminator: shell.DefaultTerminator}
	}
	if cfg.ScrollbackLimit <= 0 {
		cfg.ScrollbackLimit = scrollback.DefaultLimit
	}
	if cfg.Launch == nil {
		cfg.Launch = func(opts shell.Options) (shell.Interpreter, error) {
			return shell.Start(opts)
		}
	}
	if cfg.Schedule == nil {
		cfg.Schedule = func() {}
	}
	return &Controller{
		cfg:       cfg,
		store:     store,
		sink:      sink,
		id:        uuid.NewString(),
		done:      make(chan struct{}),
		shortcuts: normalizeShortcuts(cfg.Shortcuts),
	}
}

// ID is the session's unique identifier, used as its history key.
func (c *Controller) ID() string {
	return c.id
}

// Start resolves the start directory, launches the interpreter and starts
// reading its output. The session is Idle on success. A launch failure is
// returned and leaves the controller NotStarted. Cancelling ctx closes the
// session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNotStarted || c.proc != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	dir := c.resolveStartDir()
	opts := c.cfg.Shell
	opts.Dir = dir

	proc, err := c.cfg.Launch(opts)
	if err != nil {
		c.mu.Unlock()
		sessionLog.Error("interpreter_start_failed",
			slog.String("command", opts.Command),
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("start interpreter %q: %w", opts.Command, err)
	}

	buf := scrollback.NewBufferWithRetention(c.cfg.ScrollbackLimit, c.cfg.RetainBytes)
	c.notifier = scrollback.NewNotifier(buf, c.cfg.Schedule)
	c.proc = proc
	c.state = StateIdle
	c.workingDir = dir
	c.mu.Unlock()

	sessionLog.Info("session_started",
		slog.String("id", c.id),
		slog.String("command", opts.Command),
		slog.String("dir", dir),
		slog.Int("pid", proc.Pid()))

	if c.store != nil {
		if err := c.store.BeginSession(c.id, opts.Command, dir, proc.Pid()); err != nil {
			sessionLog.Warn("session_record_failed", slog.String("error", err.Error()))
		}
	}

	var g errgroup.Group
	g.Go(shell.NewPump(shell.Stdout, proc.Stdout(), c.onChunk, c.cfg.ReadSize).Run)
	g.Go(shell.NewPump(shell.Stderr, proc.Stderr(), c.onChunk, c.cfg.ReadSize).Run)

	go c.observeExit(&g, proc)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()
	return nil
}

// resolveStartDir returns the first existing directory of: the configured
// one, the persisted one, the platform root. The host's current directory
// is the last resort. Caller holds c.mu.
func (c *Controller) resolveStartDir() string {
	candidates := []string{c.cfg.Shell.Dir}
	saved := ""
	if c.store != nil {
		var err error
		saved, err = c.store.CurrentDirectory()
		if err != nil {
			sessionLog.Warn("current_directory_load_failed", slog.String("error", err.Error()))
			saved = ""
		}
	}
	candidates = append(candidates, saved, platform.DefaultRoot())

	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

func (c *Controller) onChunk(chunk shell.Chunk) {
	if chunk.Origin == shell.Stderr && !c.cfg.Detector.IsPromptOnly(chunk.Text) {
		c.mu.Lock()
		if c.state == StateBusy && c.lastCommand != nil {
			c.lastCommand.HasErrors = true
		}
		c.mu.Unlock()
	}
	c.notifier.Append(chunk.Text)
}

// observeExit waits for the interpreter to exit, gives the streams a moment
// to deliver their last output and tears the session down. Streams still
// open after that belong to a child the interpreter left running; they are
// closed rather than waited for.
func (c *Controller) observeExit(g *errgroup.Group, proc shell.Interpreter) {
	waitErr := proc.Wait()

	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()

	select {
	case err := <-drained:
		if err != nil {
			sessionLog.Debug("stream_read_failed", slog.String("error", err.Error()))
		}
	case <-time.After(drainTimeout):
		sessionLog.Info("output_held_after_exit", slog.String("id", c.id))
		if err := proc.CloseOutput(); err != nil {
			sessionLog.Debug("stream_close_failed", slog.String("error", err.Error()))
		}
		select {
		case <-drained:
		case <-time.After(drainTimeout):
			sessionLog.Warn("stream_close_timeout", slog.String("id", c.id))
		}
	}

	c.mu.Lock()
	c.state = StateExited
	c.exitErr = waitErr
	dir := c.workingDir
	var unfinished *Command
	if c.lastCommand != nil && c.lastCommand.FinishedAt.IsZero() {
		c.lastCommand.FinishedAt = time.Now()
		cp := *c.lastCommand
		unfinished = &cp
	}
	c.mu.Unlock()

	code := exitCode(waitErr)
	sessionLog.Info("session_exited",
		slog.String("id", c.id),
		slog.Int("exit_code", code),
		slog.String("dir", dir))

	if c.store != nil {
		if err := c.store.SetCurrentDirectory(dir); err != nil {
			sessionLog.Warn("current_directory_save_failed", slog.String("error", err.Error()))
		}
		if unfinished != nil && unfinished.ID != 0 {
			if err := c.store.FinishCommand(unfinished.ID, unfinished.FinishedAt, unfinished.HasErrors); err != nil {
				sessionLog.Warn("history_finish_failed", slog.String("error", err.Error()))
			}
		}
		if err := c.store.EndSession(c.id, dir, code); err != nil {
			sessionLog.Warn("session_end_record_failed", slog.String("error", err.Error()))
		}
	}

	close(c.done)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Submit writes text and a line terminator to the interpreter when it is
// Idle and moves the session to Busy. It returns false, writing nothing,
// in any other state.
func (c *Controller) Submit(text string) bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	cmd := &Command{Text: text, StartedAt: time.Now()}
	prev, prevMark := c.lastCommand, c.submitMark
	c.lastCommand = cmd
	c.submitMark = c.notifier.Buffer().Len()
	c.state = StateBusy
	proc := c.proc
	dir := c.workingDir
	c.mu.Unlock()

	// The write happens outside the lock: a full stdin pipe must not stall
	// the output pumps.
	if err := proc.WriteLine(text); err != nil {
		sessionLog.Warn("submit_failed", slog.String("error", err.Error()))
		c.mu.Lock()
		if c.lastCommand == cmd && c.state == StateBusy {
			c.lastCommand, c.submitMark = prev, prevMark
			c.state = StateIdle
		}
		c.mu.Unlock()
		return false
	}

	sessionLog.Debug("command_submitted", slog.String("id", c.id), slog.Int("len", len(text)))

	if c.store != nil && c.cfg.RecordHistory {
		id, err := c.store.RecordCommand(c.id, text, dir, cmd.StartedAt)
		if err != nil {
			sessionLog.Warn("history_record_failed", slog.String("error", err.Error()))
		} else {
			c.mu.Lock()
			cmd.ID = id
			c.mu.Unlock()
		}
	}
	return true
}

// SubmitInput resolves a shortcut alias and submits the result.
func (c *Controller) SubmitInput(line string) bool {
	return c.Submit(ResolveAlias(c.Shortcuts(), line))
}

// Refresh takes the current output, runs prompt detection and pushes the
// result to the sink. It must run on the render goroutine, once per
// scheduled refresh. A busy session only returns to Idle on a prompt that
// arrived after the submit; the prompt the command was typed at does not
// count.
func (c *Controller) Refresh() Update {
	c.mu.Lock()
	n := c.notifier
	c.mu.Unlock()
	if n == nil {
		return c.snapshot("")
	}

	text, total := n.RefreshMark()
	dir, atPrompt := c.cfg.Detector.Detect(text)

	var finished *Command
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateBusy {
		stale := c.state == StateBusy && total <= c.submitMark
		switch {
		case atPrompt && !stale:
			c.workingDir = dir
			if c.state == StateBusy && c.lastCommand != nil && c.lastCommand.FinishedAt.IsZero() {
				c.lastCommand.FinishedAt = time.Now()
				cp := *c.lastCommand
				finished = &cp
			}
			c.state = StateIdle
		case !atPrompt:
			c.state = StateBusy
		}
	}
	c.mu.Unlock()

	if finished != nil && finished.ID != 0 && c.store != nil {
		if err := c.store.FinishCommand(finished.ID, finished.FinishedAt, finished.HasErrors); err != nil {
			sessionLog.Warn("history_finish_failed", slog.String("error", err.Error()))
		}
	}

	u := c.snapshot(text)
	u.Total = total
	if c.sink != nil {
		c.sink(u)
	}
	return u
}

func (c *Controller) snapshot(text string) Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := Update{
		Text:       text,
		Running:    c.state == StateBusy,
		State:      c.state,
		WorkingDir: c.workingDir,
	}
	if c.lastCommand != nil {
		cp := *c.lastCommand
		u.LastCommand = &cp
		u.HasErrors = cp.HasErrors
	}
	return u
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WorkingDirectory is the directory of the last detected prompt.
func (c *Controller) WorkingDirectory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workingDir
}

// LastCommand returns a copy of the last submitted command, or nil.
func (c *Controller) LastCommand() *Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCommand == nil {
		return nil
	}
	cp := *c.lastCommand
	return &cp
}

// Shortcuts returns the active shortcuts.
func (c *Controller) Shortcuts() []Shortcut {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shortcuts
}

// SetShortcuts replaces the shortcuts, e.g. after a config reload.
func (c *Controller) SetShortcuts(shortcuts []Shortcut) {
	normalized := normalizeShortcuts(shortcuts)
	c.mu.Lock()
	c.shortcuts = normalized
	c.mu.Unlock()
}

// Scrollback returns the session's output buffer, nil before Start.
func (c *Controller) Scrollback() *scrollback.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifier == nil {
		return nil
	}
	return c.notifier.Buffer()
}

// Done is closed once the interpreter has exited and the session is torn down.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// ExitErr returns the interpreter's wait error after Done is closed.
func (c *Controller) ExitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitErr
}

// Closed reports whether the session was ended by Close rather than by the
// interpreter exiting on its own.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close kills the interpreter if it is still running and waits briefly for
// the teardown to finish. Closing a session that never started, or has
// already exited, is a no-op.
func (c *Controller) Close() error {
	c.mu.Lock()
	st, proc := c.state, c.proc
	if st != StateNotStarted && st != StateExited {
		c.closed = true
	}
	c.mu.Unlock()

	if st == StateNotStarted || st == StateExited {
		return nil
	}

	err := proc.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		sessionLog.Warn("interpreter_kill_failed", slog.String("error", err.Error()))
	} else {
		err = nil
	}

	select {
	case <-c.done:
	case <-time.After(closeTimeout):
		sessionLog.Warn("session_close_timeout", slog.String("id", c.id))
	}
	return err
}
