package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitushen/isitdown/internal/models"
)

const (
	// BodyLimit 是非 verbose 模式下返回的正文最大字符数。
	BodyLimit      = 2000
	truncateMarker = "\n\n...truncated..."
	defaultTimeout = 10 * time.Second
	maxTimeout     = 60 * time.Second
	maxBodyRead    = 4 << 20
	maxRedirects   = 10
)

var allowedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

// RedirectCheck 在跟随每次重定向前校验新的目标地址。
type RedirectCheck func(ctx context.Context, target *url.URL) error

// HTTPProber 向目标 URL 发起请求并汇总响应。
type HTTPProber struct {
	transport http.RoundTripper
	redirect  RedirectCheck
}

// NewHTTPProber 创建 HTTPProber。transport 为 nil 时使用默认传输，
// redirect 为 nil 时不校验重定向目标。
func NewHTTPProber(transport http.RoundTripper, redirect RedirectCheck) *HTTPProber {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HTTPProber{transport: transport, redirect: redirect}
}

// Probe 执行一次 HTTP 检查。调用方负责事先校验 URL。
func (p *HTTPProber) Probe(ctx context.Context, req models.HTTPCheckRequest) (*models.HTTPCheckResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if _, ok := allowedMethods[method]; !ok {
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}

	client := &http.Client{
		Transport: p.transport,
		Timeout:   Timeout(req.Timeout, defaultTimeout, maxTimeout),
	}
	client.CheckRedirect = p.checkRedirect

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(resp.Header.Values(k), ", ")
	}

	return &models.HTTPCheckResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       truncateBody(string(raw), req.Verbose),
	}, nil
}

func (p *HTTPProber) checkRedirect(next *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if p.redirect == nil {
		return nil
	}
	if err := p.redirect(next.Context(), next.URL); err != nil {
		return fmt.Errorf("redirect to %s: %w", next.URL.Host, err)
	}
	return nil
}

func truncateBody(body string, verbose bool) string {
	if verbose {
		return body
	}
	runes := []rune(body)
	if len(runes) <= BodyLimit {
		return body
	}
	return string(runes[:BodyLimit]) + truncateMarker
}

// Timeout 将以秒为单位的输入转换为时长，非正数取默认值并限制上限。
func Timeout(seconds float64, fallback, max time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	d := time.Duration(seconds * float64(time.Second))
	if d > max {
		return max
	}
	return d
}
