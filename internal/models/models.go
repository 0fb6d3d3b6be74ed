package models

// HTTPCheckRequest 是 POST /api/http 的请求体。
type HTTPCheckRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Timeout float64           `json:"timeout"`
	Verbose bool              `json:"verbose,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// HTTPCheckResponse 是 HTTP 探测的结果。
type HTTPCheckResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// PortCheckRequest 是 POST /api/port 的请求体。
type PortCheckRequest struct {
	Host    string  `json:"host"`
	Port    int     `json:"port"`
	Timeout float64 `json:"timeout"`
}

// PortCheckResponse 是 TCP 端口探测的结果。
type PortCheckResponse struct {
	Open      bool     `json:"open"`
	LatencyMS *float64 `json:"latency_ms,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// NmapRequest 是 POST /api/nmap 的请求体。
type NmapRequest struct {
	Host     string `json:"host"`
	TopPorts int    `json:"top_ports"`
	Timeout  int    `json:"timeout"`
}

// NmapResponse 包含扫描工具的原始输出。
type NmapResponse struct {
	Cmd        []string `json:"cmd,omitempty"`
	Stdout     string   `json:"stdout"`
	Stderr     string   `json:"stderr"`
	ReturnCode int      `json:"returncode"`
}

// ClientIP 是 GET /api/client-ip 的响应。
type ClientIP struct {
	IP string `json:"ip"`
}

// ServiceStatus 描述外部监控服务的当前状态。
type ServiceStatus struct {
	Service          string  `json:"service"`
	IsUp             bool    `json:"is_up"`
	UptimePercentage float64 `json:"uptime_percentage"`
	AvgResponseTime  float64 `json:"avg_response_time"`
	Timestamp        string  `json:"timestamp"`
}

// HourlyPoint 是服务历史中的一个小时统计。
type HourlyPoint struct {
	Hour            string  `json:"hour"`
	HourDisplay     string  `json:"hour_display"`
	DowntimeMinutes float64 `json:"downtime_minutes"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// ServiceHistory 是 GET /api/service/:name/history 的响应。
type ServiceHistory struct {
	ServiceStatus
	Hourly []HourlyPoint `json:"hourly"`
}

// ErrorResponse 是所有接口统一的错误载荷。
type ErrorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Message 返回错误载荷中可展示的信息。
func (e ErrorResponse) Message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}
