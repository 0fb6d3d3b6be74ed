package scanparse

import (
	"fmt"
	"strings"
)

// Header 是扫描工具表格的列头。
const Header = "PORT     STATE SERVICE"

// FormatRow 按扫描工具的列宽输出一行记录。
func FormatRow(r PortRecord) string {
	service := r.Service
	if service == "" {
		service = "unknown"
	}
	return fmt.Sprintf("%-8s %-5s %s", fmt.Sprintf("%d/%s", r.Port, r.Proto), r.State, service)
}

// RenderTable 将记录渲染为 ParseTable 可以解析的文本。
func RenderTable(records []PortRecord) string {
	var b strings.Builder
	b.WriteString(Header)
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteString(FormatRow(r))
		b.WriteByte('\n')
	}
	return b.String()
}
