package gameserver

import (
	"net"
	"sync"
)

// BanList is the process-lifetime set of banned network addresses.
// Append-only at runtime: entries are added on critical moderation
// violations and consulted read-only at connection accept.
type BanList struct {
	mu    sync.RWMutex
	addrs map[string]struct{}
}

// NewBanList creates an empty BanList.
func NewBanList() *BanList {
	return &BanList{addrs: make(map[string]struct{})}
}

// Add bans the host of addr. Accepts either "host:port" or a bare host.
func (b *BanList) Add(addr string) {
	host := hostOf(addr)
	if host == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addrs[host] = struct{}{}
}

// Contains reports whether the host of addr is banned.
func (b *BanList) Contains(addr string) bool {
	host := hostOf(addr)
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, banned := b.addrs[host]
	return banned
}

// Len returns the number of banned hosts.
func (b *BanList) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.addrs)
}

// hostOf strips the port so a reconnect from a different source port is
// still recognized.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
