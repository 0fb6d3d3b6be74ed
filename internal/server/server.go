package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/hitushen/isitdown/internal/config"
	"github.com/hitushen/isitdown/internal/logging"
	"github.com/hitushen/isitdown/internal/models"
	"github.com/hitushen/isitdown/internal/probe"
	"github.com/hitushen/isitdown/internal/realtime"
	"github.com/hitushen/isitdown/internal/scanner"
	"github.com/hitushen/isitdown/internal/scanparse"
	"github.com/hitushen/isitdown/internal/targets"
)

const (
	maxPort          = 65535
	defaultTopPorts  = 100
	defaultPort      = 80
	defaultPortWait  = 5
	maxScanTimeout   = 5 * time.Minute
	maxRequestBody   = 1 << 20
	keepaliveTimeout = 15 * time.Second
)

// Server 负责协调 HTTP 路由与各类检查。
type Server struct {
	cfg     *config.Config
	guard   *targets.Guard
	prober  *probe.HTTPProber
	scanner *scanner.Manager
	broker  *realtime.Broker
	log     *logrus.Entry
}

// Deps 允许替换 Server 的协作组件，零值字段使用默认实现。
type Deps struct {
	Guard   *targets.Guard
	Prober  *probe.HTTPProber
	Scanner *scanner.Manager
	Broker  *realtime.Broker
}

// New 按配置创建 Server，扫描引擎由 cfg.ScanEngine 决定。
func New(cfg *config.Config) *Server {
	return NewWithDeps(cfg, Deps{})
}

// NewWithDeps 使用给定组件创建 Server。
func NewWithDeps(cfg *config.Config, deps Deps) *Server {
	if deps.Broker == nil {
		deps.Broker = realtime.NewBroker()
	}
	if deps.Guard == nil {
		deps.Guard = targets.NewGuard(nil, cfg.AllowPrivate)
	}
	if deps.Prober == nil {
		deps.Prober = probe.NewHTTPProber(nil, guardRedirects(deps.Guard))
	}
	if deps.Scanner == nil {
		deps.Scanner = newManager(cfg, deps.Broker)
	}
	return &Server{
		cfg:     cfg,
		guard:   deps.Guard,
		prober:  deps.Prober,
		scanner: deps.Scanner,
		broker:  deps.Broker,
		log:     logging.For("server"),
	}
}

// guardRedirects 让 HTTP 检查跟随的每一跳都经过与首个请求相同的目标校验。
func guardRedirects(g *targets.Guard) probe.RedirectCheck {
	return func(ctx context.Context, target *url.URL) error {
		_, err := g.CheckURL(ctx, target.String())
		return err
	}
}

func newManager(cfg *config.Config, broker *realtime.Broker) *scanner.Manager {
	if cfg.ScanEngine == config.EngineNaabu {
		return scanner.NewManager(scanner.NewNaabuEngine(), nil, cfg.ScanTimeout, cfg.ScanConcurrency, broker)
	}
	return scanner.NewManager(
		scanner.NewExecEngine(cfg.NmapPath),
		scanner.NewLibraryRunner(cfg.NmapPath),
		cfg.ScanTimeout,
		cfg.ScanConcurrency,
		broker,
	)
}

// Close 等待进行中的扫描并关闭事件订阅。
func (s *Server) Close() {
	s.scanner.Close()
	s.broker.Close()
}

// Handler 返回根 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Requests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api", func(api chi.Router) {
		api.Get("/events", s.streamEvents)
		api.Get("/client-ip", s.apiClientIP)

		api.Post("/http", s.apiHTTP)
		api.Post("/port", s.apiPort)
		api.Post("/nmap", s.apiNmap)
		api.Get("/nmap/stream", s.apiNmapStream)
	})

	return r
}

func (s *Server) apiHTTP(w http.ResponseWriter, r *http.Request) {
	var body models.HTTPCheckRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		writeMessage(w, "url is required", http.StatusBadRequest)
		return
	}
	target, err := s.guard.CheckURL(r.Context(), body.URL)
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	body.URL = target

	resp, err := s.prober.Probe(r.Context(), body)
	if err != nil {
		writeMessage(w, "request failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) apiPort(w http.ResponseWriter, r *http.Request) {
	var body models.PortCheckRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Host) == "" {
		writeMessage(w, "host is required", http.StatusBadRequest)
		return
	}
	if body.Port == 0 {
		body.Port = defaultPort
	}
	if body.Port < 1 || body.Port > maxPort {
		writeMessage(w, "port must be between 1 and 65535", http.StatusBadRequest)
		return
	}
	if body.Timeout <= 0 {
		body.Timeout = defaultPortWait
	}
	host, err := s.guard.Check(r.Context(), body.Host)
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, probe.CheckPort(r.Context(), host, body.Port, body.Timeout))
}

func (s *Server) apiNmap(w http.ResponseWriter, r *http.Request) {
	var body models.NmapRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, ok := s.scanRequest(r.Context(), w, body.Host, body.TopPorts)
	if !ok {
		return
	}
	if body.Timeout > 0 {
		req.Timeout = time.Duration(body.Timeout) * time.Second
		if req.Timeout > maxScanTimeout {
			req.Timeout = maxScanTimeout
		}
	}

	resp, err := s.scanner.Run(r.Context(), req)
	if err != nil {
		s.writeScanErr(w, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) apiNmapStream(w http.ResponseWriter, r *http.Request) {
	topPorts := defaultTopPorts
	if raw := strings.TrimSpace(r.URL.Query().Get("top_ports")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, "top_ports must be an integer", http.StatusBadRequest)
			return
		}
		topPorts = n
	}
	req, ok := s.scanRequest(r.Context(), w, r.URL.Query().Get("host"), topPorts)
	if !ok {
		return
	}

	stream, err := realtime.NewStream(w)
	if err != nil {
		writeErr(w, err, http.StatusInternalServerError)
		return
	}
	_ = stream.Send(scanparse.StartMarker)

	done, err := s.scanner.Stream(r.Context(), req, func(line string) {
		_ = stream.Send(line)
	})
	if r.Context().Err() != nil {
		return
	}
	if err != nil {
		_ = stream.Send(scanparse.FormatError(err.Error()))
		return
	}
	if done == nil {
		done = &scanparse.DonePayload{}
	}
	_ = stream.Send(scanparse.FormatDone(*done))
}

// scanRequest 校验扫描参数，失败时已写出错误响应。
func (s *Server) scanRequest(ctx context.Context, w http.ResponseWriter, rawHost string, topPorts int) (scanner.Request, bool) {
	if strings.TrimSpace(rawHost) == "" {
		writeMessage(w, "host is required", http.StatusBadRequest)
		return scanner.Request{}, false
	}
	if topPorts == 0 {
		topPorts = defaultTopPorts
	}
	if topPorts < 1 || topPorts > s.cfg.MaxTopPorts {
		writeMessage(w, "top_ports must be between 1 and "+strconv.Itoa(s.cfg.MaxTopPorts), http.StatusBadRequest)
		return scanner.Request{}, false
	}
	host, err := s.guard.Check(ctx, rawHost)
	if err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return scanner.Request{}, false
	}
	if err := s.scanner.Ready(); err != nil {
		writeErr(w, err, http.StatusBadRequest)
		return scanner.Request{}, false
	}
	return scanner.Request{Host: host, TopPorts: topPorts}, true
}

func (s *Server) writeScanErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scanner.ErrTimeout):
		writeMessage(w, "nmap timed out", http.StatusGatewayTimeout)
	case errors.Is(err, scanner.ErrToolMissing):
		writeErr(w, err, http.StatusBadRequest)
	case errors.Is(err, scanner.ErrClosed):
		writeErr(w, err, http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		// 客户端已断开。
	default:
		s.log.WithError(err).Error("scan failed")
		writeMessage(w, "failed to run scan: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) apiClientIP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.ClientIP{IP: clientIP(r)})
}

// clientIP 依次取 X-Forwarded-For 的第一个地址、X-Real-IP 与连接地址。
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	ch, cleanup := s.broker.Subscribe()
	defer cleanup()

	stream, err := realtime.NewStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	keepalive := time.NewTicker(keepaliveTimeout)
	defer keepalive.Stop()
	notify := r.Context().Done()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := stream.Send(string(msg)); err != nil {
				return
			}
		case <-keepalive.C:
			if err := stream.Comment("keepalive"); err != nil {
				return
			}
		case <-notify:
			return
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, err error, status int) {
	writeMessage(w, err.Error(), status)
}

func writeMessage(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
