package scanparse

import (
	"strconv"
	"strings"
)

const (
	headerToken = "PORT"
	minFields   = 3
	maxPort     = 65535
)

// PortRecord 描述扫描输出表格中的一行端口/服务记录。
type PortRecord struct {
	Port    int    `json:"port"`
	Proto   string `json:"proto"`
	State   string `json:"state"`
	Service string `json:"service"`
}

// Key 返回记录在结果集中的唯一键（端口 + 协议）。
func (r PortRecord) Key() string {
	return strconv.Itoa(r.Port) + "/" + r.Proto
}

// ParseTable 从累计的扫描文本中提取端口记录。
// 首个以 PORT 开头的行之前的内容全部丢弃；进入表格后不再重置。
// 格式错误的行直接跳过，不会中断后续解析。
func ParseTable(raw string) []PortRecord {
	var (
		records []PortRecord
		index   = make(map[string]int)
		inTable bool
	)

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inTable {
			if strings.HasPrefix(trimmed, headerToken) {
				inTable = true
			}
			continue
		}
		if trimmed == "" {
			continue
		}

		rec, ok := parseRow(trimmed)
		if !ok {
			continue
		}
		key := rec.Key()
		if i, seen := index[key]; seen {
			records[i] = rec
			continue
		}
		index[key] = len(records)
		records = append(records, rec)
	}
	return records
}

func parseRow(line string) (PortRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return PortRecord{}, false
	}

	portStr, proto, _ := strings.Cut(fields[0], "/")
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > maxPort {
		return PortRecord{}, false
	}

	return PortRecord{
		Port:    port,
		Proto:   proto,
		State:   fields[1],
		Service: fields[2],
	}, true
}
