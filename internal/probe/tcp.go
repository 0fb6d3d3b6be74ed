package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/hitushen/isitdown/internal/models"
)

const (
	defaultDialTimeout = 5 * time.Second
	maxDialTimeout     = 30 * time.Second
)

// CheckPort 尝试建立 TCP 连接并测量耗时。
// 连接失败不视为错误，结果中携带原因。
func CheckPort(ctx context.Context, host string, port int, timeoutSeconds float64) models.PortCheckResponse {
	timeout := Timeout(timeoutSeconds, defaultDialTimeout, maxDialTimeout)
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return models.PortCheckResponse{Open: false, Error: "timeout"}
		}
		return models.PortCheckResponse{Open: false, Error: err.Error()}
	}
	latency := float64(time.Since(start).Microseconds()) / 1000.0
	_ = conn.Close()

	return models.PortCheckResponse{Open: true, LatencyMS: &latency}
}
