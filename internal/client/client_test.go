package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/session"
)

var fastBackoff = Backoff{MaxAttempts: 3, BaseDelay: time.Millisecond}

func TestBackoffRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(models.ClientIP{IP: "203.0.113.9"})
	}))
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	ip, err := c.ClientIP(context.Background())
	if err != nil {
		t.Fatalf("ClientIP: %v", err)
	}
	if ip != "203.0.113.9" {
		t.Fatalf("ip = %q", ip)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestBackoffGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	_, err := c.Port(context.Background(), models.PortCheckRequest{Host: "example.com", Port: 443, Timeout: 1})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestBackoffResendsBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.PortCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Port != 22 {
			t.Errorf("attempt %d body decode: %+v %v", atomic.LoadInt32(&calls), req, err)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(models.PortCheckResponse{Open: true})
	}))
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	resp, err := c.Port(context.Background(), models.PortCheckRequest{Host: "example.com", Port: 22, Timeout: 1})
	if err != nil || !resp.Open {
		t.Fatalf("Port = %+v, %v", resp, err)
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	b := Backoff{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := NewWith(srv.URL, srv.Client(), Backoff{MaxAttempts: 5, BaseDelay: time.Hour})
	if _, err := c.ClientIP(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"top_ports must be 1..1000"}`))
	}))
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	_, err := c.Nmap(context.Background(), models.NmapRequest{Host: "example.com", TopPorts: 5000})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "top_ports must be 1..1000" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestServiceHistoryPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/service/github/history" || r.URL.Query().Get("hours") != "12" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"service":"github","is_up":true,"uptime_percentage":99.5,"hourly":[{"hour":"2024-01-01T10:00:00","hour_display":"10:00","downtime_minutes":0,"avg_response_time":120}]}`))
	}))
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	h, err := c.ServiceHistory(context.Background(), "github", 12)
	if err != nil {
		t.Fatalf("ServiceHistory: %v", err)
	}
	if h.Service != "github" || !h.IsUp || len(h.Hourly) != 1 || h.Hourly[0].HourDisplay != "10:00" {
		t.Fatalf("history = %+v", h)
	}
}

func sseServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("host") == "" {
			t.Errorf("missing host query")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			f.Flush()
		}
	}))
}

func TestStreamScanCompleted(t *testing.T) {
	srv := sseServer(t,
		"__START__",
		"Starting Nmap 7.94",
		"PORT     STATE SERVICE",
		"22/tcp   open  ssh",
		"443/tcp  open  https",
		`__DONE__ {"returncode":0,"stderr":""}`,
		"80/tcp   open  http",
	)
	defer srv.Close()

	var updates int
	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	s, err := c.StreamScan(context.Background(), "example.com", 100, func(session.Snapshot) { updates++ })
	if err != nil {
		t.Fatalf("StreamScan: %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != session.StatusCompleted {
		t.Fatalf("status = %v (%s)", snap.Status, snap.Message)
	}
	if len(snap.Records) != 2 || snap.Records[1].Port != 443 {
		t.Fatalf("records = %+v", snap.Records)
	}
	if snap.Done == nil || snap.Done.ReturnCode != 0 {
		t.Fatalf("done = %+v", snap.Done)
	}
	if updates == 0 {
		t.Fatalf("observer never called")
	}
}

func TestStreamScanErrorMarker(t *testing.T) {
	srv := sseServer(t, "__START__", "__ERROR__ nmap binary not found on server")
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	s, _ := c.StreamScan(context.Background(), "example.com", 100, nil)
	snap := s.Snapshot()
	if snap.Status != session.StatusFailed || snap.Message != "nmap binary not found on server" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStreamScanEOFWithoutMarker(t *testing.T) {
	srv := sseServer(t, "__START__", "PORT     STATE SERVICE", "22/tcp open ssh")
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	s, _ := c.StreamScan(context.Background(), "example.com", 100, nil)
	snap := s.Snapshot()
	if snap.Status != session.StatusFailed || snap.Message != session.MsgConnectionLost {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Records) != 1 {
		t.Fatalf("records before failure should survive: %+v", snap.Records)
	}
}

func TestStreamScanHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"private targets are not allowed"}`))
	}))
	defer srv.Close()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	s, _ := c.StreamScan(context.Background(), "10.0.0.1", 100, nil)
	snap := s.Snapshot()
	if snap.Status != session.StatusFailed || snap.Message != "private targets are not allowed" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func blockingServer(started chan<- struct{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: __START__\n\n")
		w.(http.Flusher).Flush()
		started <- struct{}{}
		<-r.Context().Done()
	}))
}

func TestStreamScanCancel(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := blockingServer(started)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	c := NewWith(srv.URL, srv.Client(), fastBackoff)
	s, _ := c.StreamScan(ctx, "example.com", 100, nil)
	snap := s.Snapshot()
	if snap.Status != session.StatusFailed || snap.Message != session.MsgCancelled {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStreamScanReplacesPrevious(t *testing.T) {
	started := make(chan struct{}, 2)
	blocking := blockingServer(started)
	defer blocking.Close()
	quick := sseServer(t, "__START__", `__DONE__ {"returncode":0,"stderr":""}`)
	defer quick.Close()

	c := NewWith(blocking.URL, blocking.Client(), fastBackoff)
	first := make(chan *session.Session, 1)
	go func() {
		s, _ := c.StreamScan(context.Background(), "a.example.com", 100, nil)
		first <- s
	}()
	<-started

	c.base = quick.URL
	s2, _ := c.StreamScan(context.Background(), "b.example.com", 100, nil)
	if s2.Status() != session.StatusCompleted {
		t.Fatalf("second status = %v", s2.Status())
	}

	select {
	case s1 := <-first:
		if snap := s1.Snapshot(); snap.Status != session.StatusFailed || snap.Message != session.MsgCancelled {
			t.Fatalf("first snapshot = %+v", snap)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("first stream was not closed")
	}
}

func TestEventReader(t *testing.T) {
	raw := ": keepalive\n\ndata: one\n\nevent: x\ndata: two\ndata: three\n\ndata:four\n"
	r := newEventReader(strings.NewReader(raw))
	var got []string
	for {
		d, err := r.Next()
		if err != nil {
			break
		}
		got = append(got, d)
	}
	want := []string{"one", "two\nthree", "four"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %q want %q", got, want)
	}
}

func TestValidation(t *testing.T) {
	if _, err := ParseHeaders(`["a"]`); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("array headers should be rejected: %v", err)
	}
	if _, err := ParseHeaders(`{"X":1}`); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("non-string header values should be rejected: %v", err)
	}
	h, err := ParseHeaders(`{"User-Agent":"isitdown"}`)
	if err != nil || h["User-Agent"] != "isitdown" {
		t.Fatalf("ParseHeaders = %v, %v", h, err)
	}
	if h, err := ParseHeaders("  "); err != nil || h != nil {
		t.Fatalf("empty headers = %v, %v", h, err)
	}

	for _, bad := range []string{"abc", "0", "65536", ""} {
		if _, err := ParsePort(bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParsePort(%q) err = %v", bad, err)
		}
	}
	if p, err := ParsePort(" 8080 "); err != nil || p != 8080 {
		t.Fatalf("ParsePort = %d, %v", p, err)
	}
	if err := ValidateTopPorts(1001); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ValidateTopPorts(1001) = %v", err)
	}
	if _, err := ValidateHost("bad host"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ValidateHost with space = %v", err)
	}
}
