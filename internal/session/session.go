package session

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitushen/isitdown/internal/scanparse"
)

// Status 表示一次流式扫描会话所处的阶段。
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText 以名称而非数字输出状态。
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal 报告状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// 终态失败时展示给调用方的默认信息。
const (
	MsgConnectionLost = "connection lost"
	MsgCancelled      = "cancelled"
)

// ErrTerminal 在会话已结束后仍尝试启动时返回。
var ErrTerminal = errors.New("session already finished")

// Snapshot 是会话在某一时刻的只读副本。
type Snapshot struct {
	ID        uuid.UUID              `json:"id"`
	Host      string                 `json:"host"`
	PortCount int                    `json:"portCount"`
	Status    Status                 `json:"status"`
	Lines     int                    `json:"lines"`
	Records   []scanparse.PortRecord `json:"records"`
	Message   string                 `json:"message,omitempty"`
	Done      *scanparse.DonePayload `json:"done,omitempty"`
	StartedAt time.Time              `json:"startedAt"`
	EndedAt   time.Time              `json:"endedAt"`
}

// Session 维护一次流式扫描：原始行缓冲、派生的端口记录以及状态机。
// 每个事件在互斥锁内完整处理，事件之间不会交错。
type Session struct {
	id        uuid.UUID
	host      string
	portCount int

	mu        sync.Mutex
	lines     []string
	records   []scanparse.PortRecord
	status    Status
	message   string
	done      *scanparse.DonePayload
	startedAt time.Time
	endedAt   time.Time
	observer  func(Snapshot)

	transport io.Closer
	released  bool
}

// Option 调整会话的可选行为。
type Option func(*Session)

// WithObserver 注册每次事件处理后的回调。
func WithObserver(fn func(Snapshot)) Option {
	return func(s *Session) { s.observer = fn }
}

// WithTransport 绑定底层传输，终态时关闭。
func WithTransport(c io.Closer) Option {
	return func(s *Session) { s.transport = c }
}

// New 创建处于 Idle 状态的会话。
func New(host string, portCount int, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New(),
		host:      host,
		portCount: portCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID 返回会话标识。
func (s *Session) ID() uuid.UUID { return s.id }

// Attach 在流建立后绑定传输。已结束的会话会立即关闭该传输。
func (s *Session) Attach(c io.Closer) {
	s.mu.Lock()
	s.transport = c
	terminal := s.status.Terminal()
	s.mu.Unlock()
	if terminal {
		_ = s.release()
	}
}

// Start 将 Idle 会话切换为 Running。
func (s *Session) Start() error {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	changed := s.begin()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return nil
}

// Feed 处理一行流式输出并返回其分类。终态之后的事件被忽略。
func (s *Session) Feed(line string) scanparse.Control {
	line = strings.TrimRight(line, "\r\n")
	ctl := scanparse.ClassifyControlLine(line)

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return ctl
	}
	s.begin()

	terminal := false
	switch ctl.Signal {
	case scanparse.SignalData:
		s.lines = append(s.lines, line)
		s.records = scanparse.ParseTable(strings.Join(s.lines, "\n"))
	case scanparse.SignalDone:
		s.done = ctl.Payload
		s.finish(StatusCompleted, "")
		terminal = true
	case scanparse.SignalError:
		// 服务端给出的错误原样保留，即使为空。
		s.finish(StatusFailed, ctl.Message)
		terminal = true
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if terminal {
		_ = s.release()
	}
	s.notify(snap)
	return ctl
}

// Fail 记录传输层失败。msg 为空时使用通用的连接丢失信息。
func (s *Session) Fail(msg string) {
	if strings.TrimSpace(msg) == "" {
		msg = MsgConnectionLost
	}
	_ = s.terminate(msg)
}

// Cancel 由调用方主动终止会话，与进入终态的处理一致。
func (s *Session) Cancel() {
	_ = s.terminate(MsgCancelled)
}

func (s *Session) terminate(msg string) error {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return s.release()
	}
	s.finish(StatusFailed, msg)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	err := s.release()
	s.notify(snap)
	return err
}

// Close 释放底层传输。运行中的会话按取消处理；重复调用是空操作。
func (s *Session) Close() error {
	return s.terminate(MsgCancelled)
}

// release 关闭传输，每个会话至多一次。
func (s *Session) release() error {
	s.mu.Lock()
	if s.released || s.transport == nil {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	c := s.transport
	s.mu.Unlock()
	return c.Close()
}

// Snapshot 返回会话当前状态的副本。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Status 返回当前状态。
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Raw 返回目前累计的全部原始输出。
func (s *Session) Raw() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

func (s *Session) begin() bool {
	if s.status != StatusIdle {
		return false
	}
	s.status = StatusRunning
	s.startedAt = time.Now().UTC()
	return true
}

func (s *Session) finish(status Status, msg string) {
	s.status = status
	s.message = msg
	s.endedAt = time.Now().UTC()
}

func (s *Session) snapshotLocked() Snapshot {
	records := make([]scanparse.PortRecord, len(s.records))
	copy(records, s.records)
	return Snapshot{
		ID:        s.id,
		Host:      s.host,
		PortCount: s.portCount,
		Status:    s.status,
		Lines:     len(s.lines),
		Records:   records,
		Message:   s.message,
		Done:      s.done,
		StartedAt: s.startedAt,
		EndedAt:   s.endedAt,
	}
}

func (s *Session) notify(snap Snapshot) {
	if s.observer != nil {
		s.observer(snap)
	}
}
