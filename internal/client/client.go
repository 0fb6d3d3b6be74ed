package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hitushen/isitdown/internal/config"
	"github.com/hitushen/isitdown/internal/logging"
	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/session"
)

// APIError 是服务端返回的非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Client 调用 isitdown 服务端接口。
type Client struct {
	base    string
	http    *http.Client
	stream  *http.Client
	backoff Backoff
	log     *logrus.Entry

	mu      sync.Mutex
	current *session.Session
}

// New 根据客户端配置创建 Client。
func New(cfg *config.ClientConfig) *Client {
	hc := &http.Client{Timeout: cfg.Timeout}
	return NewWith(cfg.BaseURL, hc, Backoff{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay})
}

// NewWith 使用指定的 http.Client 与重试策略创建 Client。
// 流式请求没有整体超时，复用同一 Transport。
func NewWith(baseURL string, hc *http.Client, b Backoff) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    hc,
		stream:  &http.Client{Transport: hc.Transport},
		backoff: b,
		log:     logging.For("client"),
	}
}

// HTTP 请求服务端对目标 URL 发起 HTTP 探测。
func (c *Client) HTTP(ctx context.Context, req models.HTTPCheckRequest) (*models.HTTPCheckResponse, error) {
	var out models.HTTPCheckResponse
	if err := c.call(ctx, http.MethodPost, "/api/http", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Port 请求服务端探测 TCP 端口。
func (c *Client) Port(ctx context.Context, req models.PortCheckRequest) (*models.PortCheckResponse, error) {
	var out models.PortCheckResponse
	if err := c.call(ctx, http.MethodPost, "/api/port", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Nmap 请求一次性端口扫描，返回原始输出。
func (c *Client) Nmap(ctx context.Context, req models.NmapRequest) (*models.NmapResponse, error) {
	var out models.NmapResponse
	if err := c.call(ctx, http.MethodPost, "/api/nmap", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClientIP 返回服务端看到的调用方地址。
func (c *Client) ClientIP(ctx context.Context) (string, error) {
	var out models.ClientIP
	if err := c.call(ctx, http.MethodGet, "/api/client-ip", nil, &out); err != nil {
		return "", err
	}
	return out.IP, nil
}

// ServicesStatus 返回所有受监控服务的当前状态。
func (c *Client) ServicesStatus(ctx context.Context) ([]models.ServiceStatus, error) {
	var out []models.ServiceStatus
	if err := c.call(ctx, http.MethodGet, "/api/services/status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceStatus 返回单个服务的当前状态。
func (c *Client) ServiceStatus(ctx context.Context, name string) (*models.ServiceStatus, error) {
	var out models.ServiceStatus
	path := "/api/service/" + url.PathEscape(name) + "/status"
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ServiceHistory 返回单个服务最近 hours 小时的历史。
func (c *Client) ServiceHistory(ctx context.Context, name string, hours int) (*models.ServiceHistory, error) {
	var out models.ServiceHistory
	path := "/api/service/" + url.PathEscape(name) + "/history"
	if hours > 0 {
		path += "?hours=" + strconv.Itoa(hours)
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = data
	}

	build := func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	c.log.WithFields(logrus.Fields{"method": method, "path": path}).Debug("request")
	resp, err := c.backoff.Do(ctx, c.http, build)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var e models.ErrorResponse
	msg := ""
	if json.Unmarshal(data, &e) == nil {
		msg = e.Message()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
