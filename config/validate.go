package config

import (
	"fmt"
	"net"
	"strings"

	"auctionhouse/crypto"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: RateLimitBurst must not be negative")
	}
	if c.RPC.MaxBodyBytes < 0 {
		return fmt.Errorf("rpc: MaxBodyBytes must not be negative")
	}
	if c.RPC.EventHistory < 0 {
		return fmt.Errorf("rpc: EventHistory must not be negative")
	}
	for i, entry := range c.RPC.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("rpc: TrustedProxies[%d]: %q is neither an IP nor a CIDR block", i, entry)
		}
	}
	_, err := c.GenesisReserves()
	return err
}

// GenesisReserves decodes the genesis reserve allocations. Duplicate
// identities are rejected.
func (c *Config) GenesisReserves() (map[[20]byte]uint64, error) {
	out := make(map[[20]byte]uint64, len(c.Genesis.Reserve))
	for i, alloc := range c.Genesis.Reserve {
		addr, err := crypto.DecodeAddress(alloc.Identity)
		if err != nil {
			return nil, fmt.Errorf("genesis: reserve[%d]: %w", i, err)
		}
		if addr.Prefix() != crypto.IdentityPrefix {
			return nil, fmt.Errorf("genesis: reserve[%d]: expected %s prefix, got %s", i, crypto.IdentityPrefix, addr.Prefix())
		}
		raw := addr.Raw()
		if _, dup := out[raw]; dup {
			return nil, fmt.Errorf("genesis: reserve[%d]: duplicate identity %s", i, alloc.Identity)
		}
		out[raw] = alloc.Amount
	}
	return out, nil
}
