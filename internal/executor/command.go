package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/taskforge/internal/domain"
)

// commandEnv is the minimal environment a child process receives. No
// inherited secrets: only what a build or run step legitimately needs.
func commandEnv(root string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + root,
		"LANG=" + os.Getenv("LANG"),
		"PWD=" + root,
	}
	if tmp := os.Getenv("TMPDIR"); tmp != "" {
		env = append(env, "TMPDIR="+tmp)
	}
	return env
}

// runCommand executes a child process with its working directory
// pinned to the workspace root and a hard wall-clock timeout. On
// expiry the whole process group is killed so no descendants are left
// orphaned; a timeout is a per-action failure, not a plan abort.
func (e *Executor) runCommand(ctx context.Context, act *domain.Action, res *domain.ActionResult) {
	timeout := DefaultCommandTimeout
	if act.TimeoutSeconds > 0 {
		timeout = time.Duration(act.TimeoutSeconds) * time.Second
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, act.Command, act.Args...)
	cmd.Dir = e.ws.Root()
	cmd.Env = commandEnv(e.ws.Root())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID signals the whole process group
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		res.Status = domain.ActionFailure
		res.Error = err.Error()
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		res.Status = domain.ActionFailure
		res.Error = err.Error()
		return
	}

	if err := cmd.Start(); err != nil {
		res.Status = domain.ActionFailure
		res.Error = fmt.Sprintf("starting %s: %v", filepath.Base(act.Command), err)
		return
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error { _, err := outBuf.ReadFrom(stdout); return err })
	g.Go(func() error { _, err := errBuf.ReadFrom(stderr); return err })
	g.Wait()

	waitErr := cmd.Wait()

	res.Output = outBuf.String()
	res.Stderr = errBuf.String()

	switch {
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		res.Status = domain.ActionFailure
		res.Error = fmt.Sprintf("timeout after %s", timeout)
	case waitErr != nil:
		res.Status = domain.ActionFailure
		res.ExitCode = cmd.ProcessState.ExitCode()
		res.Error = fmt.Sprintf("exit code %d", res.ExitCode)
	default:
		res.Status = domain.ActionSuccess
	}
}
