// Package geoip resolves submitter IP addresses to a country and region,
// using a MaxMind GeoIP2 database or a JSON list of CIDR ranges.
package geoip

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP looks up locations. A nil *GeoIP resolves nothing.
type GeoIP struct {
	db       *geoip2.Reader
	fallback []record
}

// Location is where an address resolved to. Empty fields mean unknown.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
}

type record struct {
	net *net.IPNet
	loc Location
}

// Init opens the database at path. Files that are not MaxMind databases are
// read as a JSON array of {"net": CIDR, "country": ISO, "region": code}.
func Init(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err == nil {
		return &GeoIP{db: db}, nil
	}

	data, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	g, jerr := FromJSON(data)
	if jerr != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return g, nil
}

// FromJSON builds a GeoIP from a JSON range list. Invalid CIDRs are skipped.
func FromJSON(data []byte) (*GeoIP, error) {
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
		Region  string `json:"region"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode geoip ranges: %w", err)
	}
	g := &GeoIP{}
	for _, e := range entries {
		if _, n, err := net.ParseCIDR(e.Net); err == nil {
			g.fallback = append(g.fallback, record{net: n, loc: Location{Country: e.Country, Region: e.Region}})
		}
	}
	return g, nil
}

// Lookup returns the country and region for ip.
func (g *GeoIP) Lookup(ip net.IP) Location {
	if g == nil || ip == nil {
		return Location{}
	}
	if g.db != nil {
		if rec, err := g.db.City(ip); err == nil {
			loc := Location{Country: rec.Country.IsoCode}
			if len(rec.Subdivisions) > 0 {
				loc.Region = rec.Subdivisions[0].IsoCode
			}
			if loc.Country != "" {
				return loc
			}
		}
		if rec, err := g.db.Country(ip); err == nil && rec.Country.IsoCode != "" {
			return Location{Country: rec.Country.IsoCode}
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return r.loc
		}
	}
	return Location{}
}

// Country returns the ISO country code for ip, or "".
func (g *GeoIP) Country(ip net.IP) string { return g.Lookup(ip).Country }

// Region returns the subdivision code for ip, or "".
func (g *GeoIP) Region(ip net.IP) string { return g.Lookup(ip).Region }

// Close releases resources associated with the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
