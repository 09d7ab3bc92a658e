package ptyproc

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"
)

// Terminal geometry bounds. Resize requests beyond them are clamped.
const (
	MaxCols = 500
	MaxRows = 200

	DefaultCols = 80
	DefaultRows = 24

	defaultKillGrace = 5 * time.Second
	readBufferSize   = 32 * 1024

	// drainTimeout bounds how long output is still read after the command
	// exits. Descendants that keep the terminal open would otherwise hold
	// the reader forever.
	drainTimeout = 250 * time.Millisecond
)

// ErrExited is returned by Write once the process has terminated.
var ErrExited = errors.New("process has exited")

// SpawnError reports that a command could not be launched at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Options describes the process to launch.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	Cols    uint16
	Rows    uint16
	// KillGrace is how long Kill waits after SIGHUP before sending SIGKILL.
	KillGrace time.Duration
}

// Handlers receive the process output and exit. OnData runs on the reader
// goroutine once per chunk in output order. OnExit runs exactly once, after
// the last OnData has returned.
type Handlers struct {
	OnData func(data []byte)
	OnExit func(exitCode int)
}

// Process is one command running on a pseudo-terminal.
type Process struct {
	cmd       *exec.Cmd
	ptmx      *os.File
	handlers  Handlers
	killGrace time.Duration

	// wmu serialises writes and resizes against teardown.
	wmu    sync.Mutex
	exited bool

	closeOnce sync.Once
	killOnce  sync.Once
	readDone  chan struct{}
	done      chan struct{}
}

// Spawn starts opts.Command on a new pseudo-terminal and begins relaying its
// output to h. A command that cannot be started yields a *SpawnError.
func Spawn(opts Options, h Handlers) (*Process, error) {
	path, err := exec.LookPath(opts.Command)
	if err != nil {
		return nil, &SpawnError{Command: opts.Command, Err: err}
	}

	cmd := exec.Command(path, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	cols, rows := clampSize(opts.Cols, opts.Rows)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, &SpawnError{Command: opts.Command, Err: err}
	}

	grace := opts.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}

	p := &Process{
		cmd:       cmd,
		ptmx:      ptmx,
		handlers:  h,
		killGrace: grace,
		readDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go p.readLoop()
	go p.waitLoop()

	log.Printf("[pty] started %s (pid %d, %dx%d)", opts.Command, cmd.Process.Pid, cols, rows)
	return p, nil
}

func (p *Process) readLoop() {
	defer close(p.readDone)

	buf := make([]byte, readBufferSize)
	// pending holds a UTF-8 sequence split across reads so no chunk ends
	// mid-character.
	var pending []byte
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, len(pending)+n)
			copy(data, pending)
			copy(data[len(pending):], buf[:n])
			cut := len(data) - incompleteTail(data)
			pending = append(pending[:0], data[cut:]...)
			if cut > 0 {
				p.emit(data[:cut])
			}
		}
		if err != nil {
			if len(pending) > 0 {
				p.emit(append([]byte(nil), pending...))
			}
			// EIO is how Linux reports that the slave side is gone.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				log.Printf("[pty] pid %d read error: %v", p.Pid(), err)
			}
			break
		}
	}
}

// waitLoop reaps the command and reports its exit once the reader has
// finished. The pty is closed when the reader has not drained shortly after
// the exit, which happens when a descendant still holds the terminal open.
func (p *Process) waitLoop() {
	defer close(p.done)

	code := exitCode(p.cmd.Wait())

	select {
	case <-p.readDone:
	case <-time.After(drainTimeout):
		log.Printf("[pty] pid %d exited but the terminal is still held open, closing it", p.Pid())
		p.closePTY()
		<-p.readDone
	}
	p.closePTY()

	log.Printf("[pty] pid %d exited with code %d", p.Pid(), code)
	if p.handlers.OnExit != nil {
		p.handlers.OnExit(code)
	}
}

func (p *Process) closePTY() {
	p.closeOnce.Do(func() {
		p.wmu.Lock()
		p.exited = true
		p.ptmx.Close()
		p.wmu.Unlock()
	})
}

func (p *Process) emit(data []byte) {
	if p.handlers.OnData != nil {
		p.handlers.OnData(data)
	}
}

// incompleteTail returns the length of a truncated multi-byte UTF-8 sequence
// at the end of b, or 0.
func incompleteTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if c < utf8.RuneSelf || utf8.FullRune(b[len(b)-i:]) {
			return 0
		}
		return i
	}
	return 0
}

// exitCode maps a Wait error to a shell-style exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}

// Write forwards input to the process. Writes are applied in call order.
func (p *Process) Write(data []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.exited {
		return ErrExited
	}
	if _, err := p.ptmx.Write(data); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}
	return nil
}

// Resize changes the terminal geometry. It does nothing after exit.
func (p *Process) Resize(cols, rows uint16) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.exited {
		return nil
	}
	cols, rows = clampSize(cols, rows)
	if err := pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// Kill asks the process group to terminate and returns without waiting.
// OnExit fires once the command is actually gone. Whatever is still running
// in the group after the grace period is killed outright.
func (p *Process) Kill() error {
	var err error
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		// The command leads its own session, so its pid is also the group id.
		pgid := p.Pid()
		if sigErr := syscall.Kill(-pgid, syscall.SIGHUP); sigErr != nil && !errors.Is(sigErr, syscall.ESRCH) {
			err = fmt.Errorf("signal process group %d: %w", pgid, sigErr)
		}
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.killGrace):
				log.Printf("[pty] pid %d ignored SIGHUP for %s, killing", pgid, p.killGrace)
			}
			syscall.Kill(-pgid, syscall.SIGKILL)
		}()
	})
	return err
}

// Done is closed after OnExit has returned.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func clampSize(cols, rows uint16) (uint16, uint16) {
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}
	if cols > MaxCols {
		cols = MaxCols
	}
	if rows > MaxRows {
		rows = MaxRows
	}
	return cols, rows
}
