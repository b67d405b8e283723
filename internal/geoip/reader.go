package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Provider resolves reporter addresses to ISO country codes.
// A nil *Provider resolves nothing, so callers can run without a database.
type Provider struct {
	db *geoip2.Reader
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}

	return &Provider{db: db}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}

// GetCountryCode looks up the ISO country code (e.g., "US", "DE") for an address.
// Both "ip" and "ip:port" forms are accepted. Unknown or private addresses give "".
func (p *Provider) GetCountryCode(addr string) string {
	if p == nil {
		return ""
	}

	ip := parseIP(addr)
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}

	record, err := p.db.Country(ip)
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

func parseIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	return net.ParseIP(addr)
}
