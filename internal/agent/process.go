package agent

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/lookout-sh/lookout/pkg/logger"
)

// DefaultBinary is the agent CLI spawned when LOOKOUT_AGENT_BIN is unset.
const DefaultBinary = "claude"

// Process is a terminal agent running under a PTY. Prompt injection writes
// into the PTY as if the user had typed, so it works regardless of the
// agent's permission mode.
type Process struct {
	cmd       *exec.Cmd
	workspace string
	sessionID string

	mu       sync.Mutex
	ptyFile  *os.File
	ttyFile  *os.File
	ownsTTY  bool
	ttyState *term.State
	ttyFD    int
	stopCh   chan struct{}
}

// NewProcess prepares an agent process in the given workspace. When
// resumeToken is non-empty the agent is started with `--resume <token>`.
func NewProcess(workspace, resumeToken string) *Process {
	bin := os.Getenv("LOOKOUT_AGENT_BIN")
	if bin == "" {
		bin = DefaultBinary
	}

	var args []string
	resumeToken = strings.TrimSpace(resumeToken)
	if resumeToken != "" {
		args = append(args, "--resume", resumeToken)
	}
	cmd := exec.Command(bin, args...)
	cmd.Dir = workspace
	cmd.Env = os.Environ()

	return &Process{
		cmd:       cmd,
		workspace: workspace,
		sessionID: resumeToken,
		stopCh:    make(chan struct{}),
		ttyFD:     -1,
	}
}

// Workspace returns the process's working directory.
func (p *Process) Workspace() string { return p.workspace }

// SessionID returns the session id the process serves, when known.
func (p *Process) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// SetSessionID records the session id once it has been detected (for fresh
// sessions the id appears only after the agent writes its session file).
func (p *Process) SetSessionID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = id
}

// Start launches the agent under a PTY and bridges the user's terminal.
func (p *Process) Start() error {
	logger.Infof("agent: starting %s in %s", p.cmd.Path, p.workspace)

	ptyFile, err := pty.Start(p.cmd)
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	p.mu.Lock()
	p.ptyFile = ptyFile
	p.mu.Unlock()

	// Avoid reading directly from os.Stdin so we can reliably stop consuming
	// terminal input on Kill(). /dev/tty gives a handle we can close, which
	// unblocks the copy goroutine immediately.
	tty := os.Stdin
	ownsTTY := false
	if term.IsTerminal(int(os.Stdin.Fd())) {
		ttyFile, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
		if err == nil {
			tty = ttyFile
			p.ttyFile = ttyFile
			ownsTTY = true
		}
	}
	p.ownsTTY = ownsTTY

	// Raw mode so the agent's interactive UI gets keystrokes immediately.
	if term.IsTerminal(int(tty.Fd())) {
		fd := int(tty.Fd())
		if state, err := term.MakeRaw(fd); err == nil {
			p.ttyState = state
			p.ttyFD = fd
		}
	}

	_ = pty.InheritSize(tty, ptyFile)

	go func() {
		_, _ = io.Copy(os.Stdout, ptyFile)
	}()
	go func() {
		_, _ = io.Copy(ptyFile, tty)
	}()
	go p.watchWindowSize()

	logger.Infof("agent: started (pid=%d)", p.cmd.Process.Pid)
	return nil
}

func (p *Process) watchWindowSize() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	defer signal.Stop(ch)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ch:
			p.mu.Lock()
			ptyFile := p.ptyFile
			tty := os.Stdin
			if p.ttyFile != nil {
				tty = p.ttyFile
			}
			p.mu.Unlock()
			if ptyFile != nil {
				_ = pty.InheritSize(tty, ptyFile)
			}
		}
	}
}

// SendInput injects input into the agent's TUI as if typed by the user.
func (p *Process) SendInput(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ptyFile == nil {
		return fmt.Errorf("pty not initialized")
	}
	_, err := io.WriteString(p.ptyFile, text)
	return err
}

// SendLine injects text and then presses Enter, with a small delay to avoid
// paste buffering swallowing the keystroke.
func (p *Process) SendLine(text string) error {
	if err := p.SendInput(text); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return p.SendInput("\r")
}

// IsRunning reports whether the process is still alive.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	return p.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Wait blocks until the agent exits and restores the terminal.
func (p *Process) Wait() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	err := p.cmd.Wait()
	p.mu.Lock()
	p.restoreTTYLocked()
	p.mu.Unlock()
	return err
}

// Kill terminates the agent, restoring the terminal first.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}

	p.restoreTTYLocked()
	if p.ownsTTY && p.ttyFile != nil {
		_ = p.ttyFile.Close()
		p.ttyFile = nil
		p.ownsTTY = false
	}
	if p.ptyFile != nil {
		_ = p.ptyFile.Close()
	}

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	logger.Infof("agent: killing process (pid=%d)", p.cmd.Process.Pid)

	// Best-effort: interrupt first so the agent can restore terminal state.
	_ = p.cmd.Process.Signal(os.Interrupt)
	go func(cmd *exec.Cmd) {
		time.Sleep(500 * time.Millisecond)
		if cmd == nil || cmd.Process == nil {
			return
		}
		_ = cmd.Process.Kill()
	}(p.cmd)
	return nil
}

func (p *Process) restoreTTYLocked() {
	if p.ttyState == nil {
		return
	}
	if p.ttyFD >= 0 {
		_ = term.Restore(p.ttyFD, p.ttyState)
	}
	p.ttyState = nil
	p.ttyFD = -1
}
