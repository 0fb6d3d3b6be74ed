package realtime

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrStreamUnsupported 表示 ResponseWriter 不支持 Flush。
var ErrStreamUnsupported = errors.New("stream unsupported")

// Stream 按 text/event-stream 格式写出事件并立即刷新。
type Stream struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewStream 设置 SSE 响应头并返回写入器。
func NewStream(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Stream{w: w, f: flusher}, nil
}

// Send 写出一个 data 事件。多行内容拆分为多条 data 字段。
func (s *Stream) Send(data string) error {
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimRight(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := fmt.Fprint(s.w, b.String()); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// Comment 写出注释行，用于保持连接活跃。
func (s *Stream) Comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
