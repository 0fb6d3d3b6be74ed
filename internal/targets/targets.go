package targets

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// Normalize 从 URL、host:port 或裸主机名中取出小写的主机部分。
// 无法识别的输入以及以 "-" 开头的主机名返回空串。
func Normalize(address string) string {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return ""
	}
	if ip := net.ParseIP(strings.Trim(addr, "[]")); ip != nil {
		return ip.String()
	}

	// 没有协议时补一个占位协议，交给 url.Parse 处理 userinfo、端口与路径。
	if !strings.Contains(addr, "://") {
		addr = "scan://" + strings.TrimPrefix(addr, "//")
	}
	u, err := url.Parse(addr)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	// 主机名会作为扫描器的命令行参数，不能被当成选项。
	if strings.HasPrefix(host, "-") {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

// Build 返回扫描目标列表：标准化主机名在前，随后是解析得到的去重 IP。
// resolver 为 nil 时使用 net.DefaultResolver，解析失败时只返回主机名。
func Build(ctx context.Context, resolver Resolver, address string) []string {
	host := Normalize(address)
	if host == "" {
		return nil
	}
	out := []string{host}
	if net.ParseIP(host) != nil {
		return out
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return out
	}
	seen := map[string]struct{}{host: {}}
	for _, a := range addrs {
		ip := a.IP.String()
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	return out
}
