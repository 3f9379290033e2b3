package server

import (
	"fmt"
	"net"
	"strings"
)

// Config is the reward callback server configuration.
type Config struct {
	// Address to listen on (e.g., ":8090")
	ListenAddr string

	// PublicURL is the base URL the trainer reaches this server at.
	// Empty derives it from the listener address.
	PublicURL string

	// LedgerPath is the path to the SQLite rollout ledger.
	// Use ":memory:" for an in-memory ledger, or empty to disable recording.
	LedgerPath string
}

// CallbackURL returns the reward endpoint URL for a server bound to addr.
func (c Config) CallbackURL(addr net.Addr) string {
	base := strings.TrimRight(c.PublicURL, "/")
	if base == "" {
		host, port, err := net.SplitHostPort(addr.String())
		if err != nil {
			return "http://" + addr.String() + RewardPath
		}
		if host == "" || host == "::" || host == "0.0.0.0" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
	}
	return base + RewardPath
}
