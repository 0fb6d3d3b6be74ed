package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput 表示用户输入在发出请求前即被拒绝。
var ErrInvalidInput = errors.New("invalid input")

// ParseHeaders 解析 JSON 对象形式的请求头。空输入返回 nil。
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return nil, fmt.Errorf("%w: headers must be a JSON object of strings", ErrInvalidInput)
	}
	return headers, nil
}

// ParsePort 校验端口号为 1-65535 的整数。
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: port %q is not a number", ErrInvalidInput, raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: port %d out of range", ErrInvalidInput, port)
	}
	return port, nil
}

// ValidateTopPorts 校验扫描端口数量。
func ValidateTopPorts(n int) error {
	if n < 1 || n > 1000 {
		return fmt.Errorf("%w: top ports must be between 1 and 1000", ErrInvalidInput)
	}
	return nil
}

// ValidateHost 拒绝空主机名与包含空白的输入。
func ValidateHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" || strings.ContainsAny(host, " \t\r\n") {
		return "", fmt.Errorf("%w: host %q", ErrInvalidInput, host)
	}
	return host, nil
}
