// Package probe supervises the short-lived signup processes the console
// launches to provoke credential issuance from an external feed service.
// A probe runs under a pseudo-terminal: the feeder binaries print their
// signup progress only when attached to a TTY and block-buffer a plain
// pipe, which would starve the extraction poll loop.
package probe

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	ptyDevice "github.com/creack/pty"

	"github.com/easyadsb/easyadsb/internal/procutil"
)

// Options describes a probe process to launch.
type Options struct {
	Command string
	Args    []string
	Env     []string  // appended to the parent environment
	Dir     string    // working directory, empty for inherited
	LogSink io.Writer // optional mirror of the combined output stream
}

const maxBufferSize = 1 << 20 // rolling window of combined output

// Probe is a running (or exited) supervised process. The combined
// stdout/stderr stream accumulates in a rolling buffer that the discovery
// engine polls with extract.Scan.
type Probe struct {
	options Options
	command *exec.Cmd
	ptyFile *os.File

	bufferMu  sync.RWMutex
	buffer    bytes.Buffer
	discarded int64 // bytes trimmed off the front of buffer

	running  atomic.Bool
	exitCode atomic.Int32

	waitOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}

	pid int
}

// Start launches the probe and begins capturing its output. Every started
// probe is tracked in the package cleanup registry until Stop-ped, so a
// global interrupt can terminate all outstanding probes.
func Start(opts Options) (*Probe, error) {
	if opts.Command == "" {
		return nil, errors.New("probe: command is empty")
	}

	p := &Probe{
		options: opts,
		done:    make(chan struct{}),
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	p.command = cmd

	// Fixed size: probes are headless, nothing resizes them.
	ptyFile, err := ptyDevice.StartWithSize(cmd, &ptyDevice.Winsize{Rows: 24, Cols: 80})
	if err != nil {
		return nil, err
	}
	p.ptyFile = ptyFile
	p.running.Store(true)
	p.exitCode.Store(-1)
	if cmd.Process != nil {
		p.pid = cmd.Process.Pid
	}

	register(p)
	go p.capture()

	return p, nil
}

// capture drains the PTY into the rolling buffer until the process exits
// or the PTY is closed.
func (p *Probe) capture() {
	chunk := make([]byte, 4096)
	for {
		n, err := p.ptyFile.Read(chunk)
		if n > 0 {
			p.bufferMu.Lock()
			if p.buffer.Len()+n > maxBufferSize {
				excess := p.buffer.Len() + n - maxBufferSize
				p.buffer.Next(excess)
				p.discarded += int64(excess)
			}
			p.buffer.Write(chunk[:n])
			p.bufferMu.Unlock()

			if p.options.LogSink != nil {
				_, _ = p.options.LogSink.Write(chunk[:n])
			}
		}
		if err != nil {
			// EIO is the normal PTY read error once the child exits.
			p.closePTY()
			_ = p.reap()
			p.running.Store(false)
			close(p.done)
			return
		}
	}
}

// Discarded returns how many leading output bytes the rolling window has
// dropped. Offsets into Buffer are only meaningful relative to this.
func (p *Probe) Discarded() int64 {
	p.bufferMu.RLock()
	defer p.bufferMu.RUnlock()
	return p.discarded
}

// Buffer returns a copy of the combined output observed so far.
func (p *Probe) Buffer() []byte {
	p.bufferMu.RLock()
	defer p.bufferMu.RUnlock()
	if p.buffer.Len() == 0 {
		return nil
	}
	return append([]byte(nil), p.buffer.Bytes()...)
}

// Running reports whether the probe process is still alive.
func (p *Probe) Running() bool {
	return p.running.Load()
}

// PID returns the probe's process id.
func (p *Probe) PID() int {
	return p.pid
}

// ExitCode returns the exit code, or -1 while the probe is running.
func (p *Probe) ExitCode() int {
	return int(p.exitCode.Load())
}

// Done is closed once the probe has exited and its output is fully
// captured.
func (p *Probe) Done() <-chan struct{} {
	return p.done
}

// Stop terminates the probe: SIGTERM first, then a hard kill once the
// timeout elapses. It is safe to call repeatedly and after the process has
// already exited, and it always deregisters the probe from the cleanup
// registry.
func (p *Probe) Stop(timeout time.Duration) error {
	defer deregister(p)
	defer p.closePTY()

	if !p.running.Load() {
		return nil
	}
	proc := p.command.Process
	if proc == nil {
		return nil
	}

	if err := procutil.GracefulTerminate(proc); err != nil && p.running.Load() {
		// Termination can race a natural exit; only surface the error if
		// the process is genuinely still there.
		if procutil.IsProcessAlive(p.pid) {
			return err
		}
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
	}

	if err := proc.Kill(); err != nil && procutil.IsProcessAlive(p.pid) {
		return err
	}
	<-p.done
	return nil
}

func (p *Probe) closePTY() {
	p.closeOnce.Do(func() {
		if p.ptyFile != nil {
			p.ptyFile.Close()
		}
	})
}

func (p *Probe) reap() error {
	var waitErr error
	p.waitOnce.Do(func() {
		waitErr = p.command.Wait()
		if state := p.command.ProcessState; state != nil {
			p.exitCode.Store(int32(state.ExitCode()))
		}
	})
	return waitErr
}
