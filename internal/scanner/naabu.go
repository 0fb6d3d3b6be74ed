package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/projectdiscovery/goflags"
	portpkg "github.com/projectdiscovery/naabu/v2/pkg/port"
	"github.com/projectdiscovery/naabu/v2/pkg/protocol"
	"github.com/projectdiscovery/naabu/v2/pkg/result"
	"github.com/projectdiscovery/naabu/v2/pkg/runner"

	"github.com/hitushen/isitdown/internal/scanparse"
	"github.com/hitushen/isitdown/internal/targets"
)

// NaabuEngine 使用 naabu 进行 TCP connect 扫描，
// 并把结果渲染成与 nmap 相同的表格行，供流式解析器消费。
type NaabuEngine struct {
	rate    int
	retries int
}

// NewNaabuEngine 创建 NaabuEngine。
func NewNaabuEngine() *NaabuEngine {
	return &NaabuEngine{rate: 1000, retries: 1}
}

func (e *NaabuEngine) Name() string { return "naabu" }

func (e *NaabuEngine) Stream(ctx context.Context, req Request, emit func(line string)) (*scanparse.DonePayload, error) {
	targetsList := targets.Build(ctx, nil, req.Host)
	if len(targetsList) == 0 {
		return nil, fmt.Errorf("%w: %q", targets.ErrInvalidTarget, req.Host)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	emit(fmt.Sprintf("Starting naabu scan of %s (top %d ports)", req.Host, req.TopPorts))
	emit(scanparse.Header)

	onResult := func(hr *result.HostResult) {
		if hr == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, p := range hr.Ports {
			if p == nil {
				continue
			}
			rec := scanparse.PortRecord{
				Port:    p.Port,
				Proto:   protoName(p.Protocol),
				State:   "open",
				Service: serviceLabel(p),
			}
			if _, dup := seen[rec.Key()]; dup {
				continue
			}
			seen[rec.Key()] = struct{}{}
			emit(scanparse.FormatRow(rec))
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := runner.Options{
		Host:             goflags.StringSlice(targetsList),
		ScanType:         "c",
		OnResult:         onResult,
		JSON:             false,
		NoColor:          true,
		Silent:           true,
		Verbose:          false,
		Stdin:            false,
		Stream:           true,
		TopPorts:         topPortsFlag(req.TopPorts),
		Retries:          e.retries,
		Rate:             e.rate,
		Timeout:          time.Second,
		ServiceDiscovery: true,
	}

	r, err := runner.NewRunner(&opts)
	if err != nil {
		return nil, fmt.Errorf("naabu runner init: %w", err)
	}
	defer r.Close()

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.RunEnumeration(scanCtx); err != nil {
		if scanCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("naabu enumeration: %w", err)
	}

	mu.Lock()
	found := len(seen)
	mu.Unlock()
	emit("")
	emit(fmt.Sprintf("naabu done: %d open ports on %s", found, req.Host))
	return &scanparse.DonePayload{ReturnCode: 0}, nil
}

// naabu 只支持 100、1000 与 full 三档。
func topPortsFlag(n int) string {
	if n <= 100 {
		return "100"
	}
	return "1000"
}

func protoName(p protocol.Protocol) string {
	if p == protocol.UDP {
		return "udp"
	}
	return "tcp"
}

func serviceLabel(p *portpkg.Port) string {
	if p == nil || p.Service == nil {
		return "unknown"
	}
	svc := p.Service
	if svc.Name != "" {
		return svc.Name
	}
	if svc.Product != "" {
		return svc.Product
	}
	return "unknown"
}
