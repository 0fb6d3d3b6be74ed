package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/scanparse"
)

// LibraryRunner 通过 nmap 的 XML 输出执行一次性扫描，
// 再把结果渲染成标准端口表，使客户端解析与流式路径一致。
type LibraryRunner struct {
	path string
}

// NewLibraryRunner 创建 LibraryRunner。path 为空时使用 PATH 中的 nmap。
func NewLibraryRunner(path string) *LibraryRunner {
	return &LibraryRunner{path: path}
}

func (r *LibraryRunner) Run(ctx context.Context, req Request) (*models.NmapResponse, error) {
	opts := []nmap.Option{
		nmap.WithTargets(req.Host),
		nmap.WithConnectScan(),
		nmap.WithMostCommonPorts(req.TopPorts),
		nmap.WithOpenOnly(),
	}
	if r.path != "" {
		opts = append(opts, nmap.WithBinaryPath(r.path))
	}

	s, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		if errors.Is(err, nmap.ErrNmapNotInstalled) {
			return nil, ErrToolMissing
		}
		return nil, fmt.Errorf("nmap scanner: %w", err)
	}

	result, warnings, err := s.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctxErr
	}

	bin := r.path
	if bin == "" {
		bin = "nmap"
	}
	resp := &models.NmapResponse{Cmd: CommandLine(bin, req)}
	if warnings != nil && len(*warnings) > 0 {
		resp.Stderr = strings.Join(*warnings, "\n") + "\n"
	}
	if err != nil {
		resp.ReturnCode = 1
		if resp.Stderr == "" {
			resp.Stderr = err.Error() + "\n"
		}
		return resp, nil
	}

	resp.Stdout = fmt.Sprintf("Nmap scan report for %s\n", req.Host) + scanparse.RenderTable(recordsFromRun(result))
	return resp, nil
}

func recordsFromRun(run *nmap.Run) []scanparse.PortRecord {
	if run == nil {
		return nil
	}
	var out []scanparse.PortRecord
	for _, host := range run.Hosts {
		for _, p := range host.Ports {
			out = append(out, scanparse.PortRecord{
				Port:    int(p.ID),
				Proto:   p.Protocol,
				State:   p.State.State,
				Service: p.Service.Name,
			})
		}
	}
	return out
}
