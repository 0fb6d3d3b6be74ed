package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hitushen/isitdown/internal/session"
)

// StreamScan 打开实时扫描流，并把每个事件交给新会话处理，直到会话进入终态。
// 同一 Client 上再次调用会先关闭上一个会话。
// 返回的会话总是处于 Completed 或 Failed。
func (c *Client) StreamScan(ctx context.Context, host string, topPorts int, observer func(session.Snapshot)) (*session.Session, error) {
	var opts []session.Option
	if observer != nil {
		opts = append(opts, session.WithObserver(observer))
	}
	s := session.New(host, topPorts, opts...)
	c.replace(s)
	defer c.forget(s)

	q := url.Values{}
	q.Set("host", host)
	q.Set("top_ports", strconv.Itoa(topPorts))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/nmap/stream?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	if err := s.Start(); err != nil {
		return s, nil
	}
	stop := context.AfterFunc(ctx, s.Cancel)
	defer stop()

	log := c.log.WithFields(logrus.Fields{"session": s.ID(), "host": host})
	resp, err := c.stream.Do(req)
	if err != nil {
		log.WithError(err).Debug("stream open failed")
		c.abort(ctx, s, "")
		return s, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		resp.Body.Close()
		var e *APIError
		msg := ""
		if errors.As(apiErr, &e) {
			msg = e.Message
		}
		s.Fail(msg)
		return s, nil
	}
	s.Attach(resp.Body)

	events := newEventReader(resp.Body)
	for {
		data, err := events.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("stream read failed")
			}
			break
		}
		for _, line := range strings.Split(data, "\n") {
			s.Feed(line)
		}
		if s.Status().Terminal() {
			break
		}
	}
	c.abort(ctx, s, "")
	return s, nil
}

// Close 关闭当前打开的流式会话。
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// abort 在流提前结束时为会话补上终态。已结束的会话不受影响。
func (c *Client) abort(ctx context.Context, s *session.Session, msg string) {
	if ctx.Err() != nil {
		s.Cancel()
		return
	}
	s.Fail(msg)
}

func (c *Client) replace(s *session.Session) {
	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

func (c *Client) forget(s *session.Session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
}

// eventReader 从 text/event-stream 中读取 data 事件。
type eventReader struct {
	sc *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &eventReader{sc: sc}
}

// Next 返回下一个事件的 data 字段，多个 data 行以换行连接。
func (e *eventReader) Next() (string, error) {
	var (
		data []string
		seen bool
	)
	for e.sc.Scan() {
		line := strings.TrimRight(e.sc.Text(), "\r")
		if line == "" {
			if seen {
				return strings.Join(data, "\n"), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		data = append(data, value)
		seen = true
	}
	if err := e.sc.Err(); err != nil {
		return "", err
	}
	if seen {
		return strings.Join(data, "\n"), nil
	}
	return "", io.EOF
}
