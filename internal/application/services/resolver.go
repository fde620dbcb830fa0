package services

import (
	"net"
	"strings"

	"github.com/tbag/core/internal/domain/entities"
)

// SubdomainLabel extracts the leftmost DNS label of a Host header value.
// The port is dropped when present and the result is lowercased. A host
// without any dot is returned whole.
func SubdomainLabel(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if i := strings.IndexByte(host, '.'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}

// ResolveSubdomain looks the host's leftmost label up in a snapshot
func ResolveSubdomain(snapshot *Snapshot, host string) (entities.IndexEntry, bool) {
	label := SubdomainLabel(host)
	if label == "" {
		return entities.IndexEntry{}, false
	}
	return snapshot.Lookup(label)
}
