package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRateLimited 表示在重试次数耗尽后仍然收到 429。
var ErrRateLimited = errors.New("rate limited, try again later")

// Doer 是发出单个 HTTP 请求的最小接口，*http.Client 满足它。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Backoff 在收到 429 时以指数增长的间隔重发同一请求。
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultBackoff 与网页端一致：最多 3 次，基础间隔 1 秒。
var DefaultBackoff = Backoff{MaxAttempts: 3, BaseDelay: time.Second}

// Delay 返回第 attempt 次（从 1 开始）失败后的等待时间。
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.BaseDelay << uint(attempt-1)
}

// Do 发出 build 构造的请求。每次重试都重新构造请求，以便请求体可重复读取。
// 非 429 的响应原样返回，由调用方处理。
func (b Backoff) Do(ctx context.Context, d Doer, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := d.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if attempt >= attempts {
			return nil, fmt.Errorf("%w (after %d attempts)", ErrRateLimited, attempt)
		}
		if err := sleep(ctx, b.Delay(attempt)); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
