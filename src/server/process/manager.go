package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"infer-mli/src/internal/common"
	"infer-mli/src/internal/constants"
	"infer-mli/src/internal/types"
)

// ProcessInfo holds information about a running language server process
type ProcessInfo struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	StopCh chan struct{}
	Active bool

	stopOnce sync.Once
}

// markStopped closes StopCh exactly once. StopProcess and MonitorProcess
// can race to signal termination.
func (info *ProcessInfo) markStopped() {
	info.stopOnce.Do(func() { close(info.StopCh) })
}

// ShutdownSender interface for sending LSP shutdown messages before the
// process is torn down
type ShutdownSender interface {
	SendShutdownRequest(ctx context.Context) error
	SendExitNotification(ctx context.Context) error
}

// ProcessManager interface for language server process lifecycle management
type ProcessManager interface {
	StartProcess(config types.ClientConfig) (*ProcessInfo, error)
	StopProcess(info *ProcessInfo, sender ShutdownSender) error
	MonitorProcess(info *ProcessInfo, onExit func(error))
	CleanupProcess(info *ProcessInfo)
}

// LSPProcessManager implements ProcessManager for language server processes
type LSPProcessManager struct{}

// NewLSPProcessManager creates a new LSP process manager
func NewLSPProcessManager() *LSPProcessManager {
	return &LSPProcessManager{}
}

// StartProcess spawns the language server with the workspace root as its
// working directory. Stdin/stdout become the protocol channel; stderr is
// inherited so server diagnostics reach the user unmodified.
func (pm *LSPProcessManager) StartProcess(config types.ClientConfig) (*ProcessInfo, error) {
	cmd := exec.Command(config.Command, config.Args...)
	cmd.Dir = config.WorkspaceRoot
	cmd.Stderr = os.Stderr

	info := &ProcessInfo{
		Cmd:    cmd,
		StopCh: make(chan struct{}),
	}

	var err error
	info.Stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	info.Stdout, err = cmd.StdoutPipe()
	if err != nil {
		info.Stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		pm.CleanupProcess(info)
		return nil, fmt.Errorf("failed to start language server %q: %w", config.Command, err)
	}

	common.LSPLogger.Info("Started language server %s: PID %d", config.Command, cmd.Process.Pid)
	return info, nil
}

// StopProcess terminates a language server process, gracefully when
// possible. The process is an exclusively owned resource: it is killed if
// it does not exit within ProcessShutdownTimeout, so no orphan survives an
// early teardown.
func (pm *LSPProcessManager) StopProcess(info *ProcessInfo, sender ShutdownSender) error {
	if info == nil {
		return nil
	}

	info.markStopped()

	if sender != nil {
		pm.sendShutdown(sender)
	}

	info.Active = false

	// Closing stdin signals EOF, the usual exit cue for a stdio server
	// that missed the exit notification.
	if info.Stdin != nil {
		info.Stdin.Close()
		info.Stdin = nil
	}

	if info.Cmd != nil && info.Cmd.Process != nil {
		done := make(chan error, 1)
		go func() {
			done <- info.Cmd.Wait()
		}()

		select {
		case <-done:
			// Process exited gracefully
		case <-time.After(constants.ProcessShutdownTimeout):
			common.LSPLogger.Warn("Language server did not exit within %v, force killing", constants.ProcessShutdownTimeout)
			if err := info.Cmd.Process.Kill(); err != nil {
				common.LSPLogger.Error("Failed to kill language server: %v", err)
			}
			<-done
		}
	}

	pm.CleanupProcess(info)
	return nil
}

// MonitorProcess waits for the server process and reports when it exits.
// The StopCh is closed on exit so pending requests fail instead of hanging.
func (pm *LSPProcessManager) MonitorProcess(info *ProcessInfo, onExit func(error)) {
	if info == nil || info.Cmd == nil || info.Cmd.Process == nil {
		common.LSPLogger.Error("MonitorProcess called with nil process info or command")
		if onExit != nil {
			onExit(fmt.Errorf("invalid process info"))
		}
		return
	}

	err := info.Cmd.Wait()

	wasActive := info.Active
	if err != nil {
		if wasActive {
			common.LSPLogger.Error("Language server exited unexpectedly: %v", err)
		} else {
			common.LSPLogger.Debug("Language server exited during startup or shutdown: %v", err)
		}
	}

	info.markStopped()

	if onExit != nil {
		onExit(err)
	}
}

// CleanupProcess closes the protocol pipes
func (pm *LSPProcessManager) CleanupProcess(info *ProcessInfo) {
	if info == nil {
		return
	}

	if info.Stdin != nil {
		info.Stdin.Close()
		info.Stdin = nil
	}
	if info.Stdout != nil {
		info.Stdout.Close()
		info.Stdout = nil
	}
}

// sendShutdown sends the shutdown/exit sequence through the ShutdownSender
func (pm *LSPProcessManager) sendShutdown(sender ShutdownSender) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()

	sender.SendShutdownRequest(shutdownCtx)

	exitCtx, exitCancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer exitCancel()

	sender.SendExitNotification(exitCtx)
}
