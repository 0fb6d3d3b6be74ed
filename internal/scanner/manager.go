package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hitushen/isitdown/internal/logging"
	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/realtime"
	"github.com/hitushen/isitdown/internal/scanparse"
)

// Manager 负责限制并发扫描数量、施加超时并广播扫描生命周期事件。
type Manager struct {
	engine       Engine
	runner       Runner
	timeout      time.Duration
	slots        chan struct{}
	realtime     *realtime.Broker
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	stopCh       chan struct{}
	log          *logrus.Entry
}

// NewManager 创建 Manager。runner 为 nil 时一次性扫描复用流式引擎。
func NewManager(engine Engine, runner Runner, timeout time.Duration, concurrency int, broker *realtime.Broker) *Manager {
	if concurrency <= 0 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if runner == nil {
		runner = Collect(engine)
	}
	if broker == nil {
		broker = realtime.NewBroker()
	}
	return &Manager{
		engine:   engine,
		runner:   runner,
		timeout:  timeout,
		slots:    make(chan struct{}, concurrency),
		realtime: broker,
		stopCh:   make(chan struct{}),
		log:      logging.For("scanner"),
	}
}

// Engine 返回流式扫描所用引擎的名称。
func (m *Manager) Engine() string { return m.engine.Name() }

// Timeout 返回请求未指定时使用的默认超时。
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Ready 在扫描前检查引擎依赖的外部工具是否就绪。
func (m *Manager) Ready() error {
	if a, ok := m.engine.(interface{ Available() error }); ok {
		return a.Available()
	}
	return nil
}

// Run 执行一次性扫描，返回完整输出。
func (m *Manager) Run(ctx context.Context, req Request) (*models.NmapResponse, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	scanCtx, cancel := context.WithTimeout(ctx, m.deadline(req))
	defer cancel()

	id := m.begin(req)
	start := time.Now()
	resp, err := m.runner.Run(scanCtx, req)
	if scanCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = ErrTimeout
	}
	var code *int
	if resp != nil {
		code = &resp.ReturnCode
	}
	m.finish(id, req, start, code, err)
	return resp, err
}

// Stream 执行流式扫描，每行输出通过 emit 交付。
func (m *Manager) Stream(ctx context.Context, req Request, emit func(line string)) (*scanparse.DonePayload, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	scanCtx, cancel := context.WithTimeout(ctx, m.deadline(req))
	defer cancel()

	id := m.begin(req)
	start := time.Now()
	done, err := m.engine.Stream(scanCtx, req, emit)
	if scanCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		err = ErrTimeout
	}
	var code *int
	if done != nil {
		code = &done.ReturnCode
	}
	m.finish(id, req, start, code, err)
	return done, err
}

// Close 等待进行中的扫描结束，之后的请求返回 ErrClosed。
func (m *Manager) Close() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Manager) acquire(ctx context.Context) (func(), error) {
	select {
	case <-m.stopCh:
		return nil, ErrClosed
	default:
	}
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.stopCh:
		return nil, ErrClosed
	}
	m.wg.Add(1)
	return func() {
		<-m.slots
		m.wg.Done()
	}, nil
}

func (m *Manager) deadline(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return m.timeout
}

func (m *Manager) begin(req Request) string {
	id := uuid.NewString()
	m.log.WithFields(logrus.Fields{
		"scan":   id,
		"host":   req.Host,
		"top":    req.TopPorts,
		"engine": m.engine.Name(),
	}).Info("scan started")
	m.realtime.Publish(realtime.Event{
		Type:   realtime.EventScanStarted,
		ScanID: id,
		Host:   req.Host,
		Payload: map[string]interface{}{
			"topPorts": req.TopPorts,
			"started":  time.Now().UTC(),
		},
	})
	return id
}

func (m *Manager) finish(id string, req Request, start time.Time, code *int, err error) {
	entry := m.log.WithFields(logrus.Fields{
		"scan":     id,
		"host":     req.Host,
		"duration": time.Since(start).Truncate(time.Millisecond),
	})
	payload := map[string]interface{}{
		"success":   err == nil,
		"completed": time.Now().UTC(),
	}
	if code != nil {
		payload["returncode"] = *code
	}
	if err != nil {
		payload["error"] = err.Error()
		if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) {
			entry.WithError(err).Warn("scan aborted")
		} else {
			entry.WithError(err).Error("scan failed")
		}
	} else {
		entry.Info("scan completed")
	}
	m.realtime.Publish(realtime.Event{
		Type:    realtime.EventScanFinished,
		ScanID:  id,
		Host:    req.Host,
		Payload: payload,
	})
}
