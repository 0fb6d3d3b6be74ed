package targets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidTarget 表示输入无法解析出主机。
	ErrInvalidTarget = errors.New("invalid target")
	// ErrPrivateTarget 表示目标解析到内网、回环或链路本地地址。
	ErrPrivateTarget = errors.New("target resolves to a private or local address")
)

// Resolver 抽象 DNS 查询，便于测试替换。
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard 在发起探测前校验目标地址。
type Guard struct {
	resolver     Resolver
	allowPrivate bool
}

// NewGuard 创建 Guard。resolver 为 nil 时使用 net.DefaultResolver。
func NewGuard(resolver Resolver, allowPrivate bool) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{resolver: resolver, allowPrivate: allowPrivate}
}

// Check 标准化输入并拒绝私有目标，返回可直接使用的主机名。
func (g *Guard) Check(ctx context.Context, address string) (string, error) {
	host := Normalize(address)
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, address)
	}
	if g.allowPrivate {
		return host, nil
	}
	if g.isPrivate(ctx, host) {
		return "", ErrPrivateTarget
	}
	return host, nil
}

// CheckURL 校验 URL 的主机部分，返回补全协议后的 URL。
func (g *Guard) CheckURL(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidTarget)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if _, err := g.Check(ctx, u.Host); err != nil {
		return "", err
	}
	return u.String(), nil
}

// 解析失败时按私有地址处理。
func (g *Guard) isPrivate(ctx context.Context, host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return privateIP(ip)
	}
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return true
	}
	for _, addr := range addrs {
		if privateIP(addr.IP) {
			return true
		}
	}
	return false
}

func privateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
