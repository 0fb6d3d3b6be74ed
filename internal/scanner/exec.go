package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/hitushen/isitdown/internal/scanparse"
)

// ExecEngine 直接运行 nmap 进程并逐行转发其标准输出。
type ExecEngine struct {
	path string
}

// NewExecEngine 创建 ExecEngine。path 为空时从 PATH 中查找 nmap。
func NewExecEngine(path string) *ExecEngine {
	return &ExecEngine{path: path}
}

func (e *ExecEngine) Name() string { return "nmap" }

// Available 检查 nmap 是否可执行。
func (e *ExecEngine) Available() error {
	_, err := e.binary()
	return err
}

func (e *ExecEngine) binary() (string, error) {
	name := e.path
	if name == "" {
		name = "nmap"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return "", ErrToolMissing
	}
	return bin, nil
}

// Stream 启动 nmap，按顺序转发每一行输出，结束后返回退出码与 stderr。
func (e *ExecEngine) Stream(ctx context.Context, req Request, emit func(line string)) (*scanparse.DonePayload, error) {
	bin, err := e.binary()
	if err != nil {
		return nil, err
	}

	args := CommandLine(bin, req)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to run nmap: %w", err)
	}

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		emit(sc.Text())
	}
	scanErr := sc.Err()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctxErr
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read nmap output: %w", scanErr)
	}

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("nmap wait: %w", waitErr)
		}
		code = exitErr.ExitCode()
	}
	return &scanparse.DonePayload{ReturnCode: code, Stderr: stderr.String()}, nil
}
