package gate

import (
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP resolves the caller address from the first X-Forwarded-For
// entry, then X-Real-IP, then the socket peer.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return c.IP()
}

// BlockList matches addresses against exact entries and CIDR ranges.
type BlockList struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
	raw      map[string]struct{}
}

// NewBlockList compiles entries. Entries that are neither an address nor a
// range are kept for exact string comparison.
func NewBlockList(entries []string) *BlockList {
	b := &BlockList{addrs: map[netip.Addr]struct{}{}, raw: map[string]struct{}{}}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			if p, err := netip.ParsePrefix(e); err == nil {
				b.prefixes = append(b.prefixes, p.Masked())
				continue
			}
		} else if a, err := netip.ParseAddr(e); err == nil {
			b.addrs[a.Unmap()] = struct{}{}
			continue
		}
		b.raw[e] = struct{}{}
	}
	return b
}

func (b *BlockList) Contains(ip string) bool {
	if _, ok := b.raw[ip]; ok {
		return true
	}
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	if _, ok := b.addrs[a]; ok {
		return true
	}
	for _, p := range b.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
