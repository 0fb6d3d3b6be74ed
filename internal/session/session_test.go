package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/hitushen/isitdown/internal/scanparse"
)

type fakeTransport struct {
	mu     sync.Mutex
	closes int
	err    error
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func TestSession_DataDataError(t *testing.T) {
	tr := &fakeTransport{}
	var seen []Status
	s := New("example.com", 100, WithTransport(tr), WithObserver(func(snap Snapshot) {
		seen = append(seen, snap.Status)
	}))
	if s.Status() != StatusIdle {
		t.Fatalf("new session status = %v", s.Status())
	}

	s.Feed("PORT STATE SERVICE")
	s.Feed("22/tcp open ssh")
	ctl := s.Feed("__ERROR__boom")
	if ctl.Signal != scanparse.SignalError {
		t.Fatalf("expected error signal, got %v", ctl.Signal)
	}

	want := []Status{StatusRunning, StatusRunning, StatusFailed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v want %v", seen, want)
		}
	}

	snap := s.Snapshot()
	if snap.Message != "boom" {
		t.Fatalf("message = %q", snap.Message)
	}
	if len(snap.Records) != 1 || snap.Records[0].Port != 22 {
		t.Fatalf("records = %+v", snap.Records)
	}
	if tr.count() != 1 {
		t.Fatalf("transport closed %d times, want 1", tr.count())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if tr.count() != 1 {
		t.Fatalf("transport closed %d times after second close", tr.count())
	}
}

func TestSession_Completed(t *testing.T) {
	tr := &fakeTransport{}
	s := New("example.com", 10, WithTransport(tr))
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, line := range []string{"Starting Nmap", "PORT     STATE SERVICE", "21/tcp   open  ftp", "80/tcp   open  http"} {
		if ctl := s.Feed(line); ctl.Signal != scanparse.SignalData {
			t.Fatalf("line %q classified as %v", line, ctl.Signal)
		}
	}
	s.Feed(`__DONE__ {"returncode": 0, "stderr": ""}`)

	snap := s.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %v", snap.Status)
	}
	if snap.Done == nil || snap.Done.ReturnCode != 0 {
		t.Fatalf("done payload = %+v", snap.Done)
	}
	if snap.Lines != 4 || len(snap.Records) != 2 {
		t.Fatalf("lines=%d records=%+v", snap.Lines, snap.Records)
	}
	if tr.count() != 1 {
		t.Fatalf("transport closed %d times", tr.count())
	}
}

func TestSession_LateEventsIgnored(t *testing.T) {
	s := New("example.com", 10)
	s.Feed("PORT STATE SERVICE")
	s.Feed("21/tcp open ftp")
	s.Cancel()

	s.Feed("22/tcp open ssh")
	s.Feed("__DONE__{}")

	snap := s.Snapshot()
	if snap.Status != StatusFailed || snap.Message != MsgCancelled {
		t.Fatalf("status=%v message=%q", snap.Status, snap.Message)
	}
	if len(snap.Records) != 1 || snap.Lines != 2 {
		t.Fatalf("late events mutated session: %+v", snap)
	}
	if err := s.Start(); !errors.Is(err, ErrTerminal) {
		t.Fatalf("start after cancel = %v", err)
	}
}

func TestSession_FailDefaultsMessage(t *testing.T) {
	tr := &fakeTransport{}
	s := New("example.com", 10, WithTransport(tr))
	s.Start()
	s.Fail("")
	if got := s.Snapshot().Message; got != MsgConnectionLost {
		t.Fatalf("message = %q", got)
	}
	s.Fail("other")
	if got := s.Snapshot().Message; got != MsgConnectionLost {
		t.Fatalf("terminal message overwritten: %q", got)
	}
	if tr.count() != 1 {
		t.Fatalf("transport closed %d times", tr.count())
	}
}

func TestSession_EmptyErrorMarker(t *testing.T) {
	s := New("example.com", 10)
	s.Feed("__ERROR__")
	if snap := s.Snapshot(); snap.Status != StatusFailed || snap.Message != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSession_AttachAfterTerminal(t *testing.T) {
	s := New("example.com", 10)
	s.Cancel()
	tr := &fakeTransport{}
	s.Attach(tr)
	if tr.count() != 1 {
		t.Fatalf("late transport not released: %d", tr.count())
	}
	_ = s.Close()
	if tr.count() != 1 {
		t.Fatalf("transport closed %d times", tr.count())
	}
}

func TestSession_CloseCancelsRunning(t *testing.T) {
	tr := &fakeTransport{err: errors.New("already gone")}
	s := New("example.com", 10, WithTransport(tr))
	s.Feed("PORT STATE SERVICE")
	if err := s.Close(); err == nil {
		t.Fatalf("expected first close to surface transport error")
	}
	if s.Status() != StatusFailed {
		t.Fatalf("status = %v", s.Status())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close = %v", err)
	}
}

func TestSession_ConcurrentCancel(t *testing.T) {
	tr := &fakeTransport{}
	s := New("example.com", 1000, WithTransport(tr))
	s.Feed("PORT STATE SERVICE")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			s.Feed(scanparse.FormatRow(scanparse.PortRecord{Port: i, Proto: "tcp", State: "open", Service: "x"}))
		}
	}()
	go func() {
		defer wg.Done()
		s.Cancel()
	}()
	wg.Wait()

	before := s.Snapshot()
	s.Feed("999/tcp open late")
	after := s.Snapshot()
	if len(before.Records) != len(after.Records) {
		t.Fatalf("records changed after cancel: %d -> %d", len(before.Records), len(after.Records))
	}
	if tr.count() != 1 {
		t.Fatalf("transport closed %d times", tr.count())
	}
}
