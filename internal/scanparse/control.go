package scanparse

import (
	"encoding/json"
	"strings"
)

// 流式输出中的带外控制标记。
const (
	StartMarker = "__START__"
	DoneMarker  = "__DONE__"
	ErrorMarker = "__ERROR__"
)

// Signal 表示一行输出的分类结果。
type Signal int

const (
	SignalData Signal = iota
	SignalDone
	SignalError
)

func (s Signal) String() string {
	switch s {
	case SignalDone:
		return "done"
	case SignalError:
		return "error"
	default:
		return "data"
	}
}

// DonePayload 是扫描结束标记携带的可选结构化信息。
type DonePayload struct {
	ReturnCode int    `json:"returncode"`
	Stderr     string `json:"stderr"`
}

// Control 是 ClassifyControlLine 的返回值。
type Control struct {
	Signal  Signal
	Payload *DonePayload // 仅 SignalDone 且负载可解析时非空
	Message string       // 仅 SignalError
}

// ClassifyControlLine 判断一行是数据、结束标记还是错误标记。
func ClassifyControlLine(line string) Control {
	switch {
	case strings.HasPrefix(line, DoneMarker):
		ctl := Control{Signal: SignalDone}
		rest := strings.TrimSpace(markerRemainder(line, DoneMarker))
		if rest == "" {
			return ctl
		}
		var payload DonePayload
		if err := json.Unmarshal([]byte(rest), &payload); err == nil {
			ctl.Payload = &payload
		}
		return ctl
	case strings.HasPrefix(line, ErrorMarker):
		return Control{Signal: SignalError, Message: markerRemainder(line, ErrorMarker)}
	default:
		return Control{Signal: SignalData}
	}
}

// FormatDone 生成服务端发送的结束标记行。
func FormatDone(payload DonePayload) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return DoneMarker
	}
	return DoneMarker + " " + string(data)
}

// FormatError 生成服务端发送的错误标记行。
func FormatError(msg string) string {
	return ErrorMarker + " " + msg
}

// 标记与负载之间允许一个分隔空格。
func markerRemainder(line, marker string) string {
	rest := strings.TrimPrefix(line, marker)
	return strings.TrimPrefix(rest, " ")
}
