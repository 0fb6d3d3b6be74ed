package scanner

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/scanparse"
)

var (
	// ErrToolMissing 表示服务器上找不到扫描工具。
	ErrToolMissing = errors.New("nmap binary not found on server")
	// ErrTimeout 表示扫描超出时限。
	ErrTimeout = errors.New("scan timed out")
	// ErrClosed 表示 Manager 已停止。
	ErrClosed = errors.New("scanner is shutting down")
)

// Request 描述一次针对单个主机的扫描。
type Request struct {
	Host     string
	TopPorts int
	Timeout  time.Duration
}

// Engine 以逐行文本的形式产出扫描结果。emit 按到达顺序串行调用。
type Engine interface {
	Name() string
	Stream(ctx context.Context, req Request, emit func(line string)) (*scanparse.DonePayload, error)
}

// Runner 执行一次性扫描并返回完整输出。
type Runner interface {
	Run(ctx context.Context, req Request) (*models.NmapResponse, error)
}

// CommandLine 返回扫描对应的 nmap 命令参数，用于展示与执行。
// 目标放在 "--" 之后，不会被解析为选项。
func CommandLine(bin string, req Request) []string {
	return []string{bin, "-sT", "--top-ports", strconv.Itoa(req.TopPorts), "--open", "--", req.Host}
}

// collectRunner 将流式引擎适配为一次性 Runner。
type collectRunner struct {
	engine Engine
}

// Collect 返回收集流式引擎全部输出的 Runner。
func Collect(engine Engine) Runner {
	return &collectRunner{engine: engine}
}

func (c *collectRunner) Run(ctx context.Context, req Request) (*models.NmapResponse, error) {
	var lines []string
	done, err := c.engine.Stream(ctx, req, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return nil, err
	}
	resp := &models.NmapResponse{
		Cmd:    []string{c.engine.Name(), req.Host},
		Stdout: strings.Join(lines, "\n"),
	}
	if len(lines) > 0 {
		resp.Stdout += "\n"
	}
	if done != nil {
		resp.Stderr = done.Stderr
		resp.ReturnCode = done.ReturnCode
	}
	return resp, nil
}
