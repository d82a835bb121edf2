package geoip

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ranges = `[
  {"net": "41.90.0.0/16", "country": "KE", "region": "30"},
  {"net": "102.88.0.0/16", "country": "NG", "region": "LA"},
  {"net": "not-a-cidr", "country": "XX"}
]`

func TestInit_JSONFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ranges.json")
	require.NoError(t, os.WriteFile(path, []byte(ranges), 0o644))

	g, err := Init(path)
	require.NoError(t, err)
	defer func() { _ = g.Close() }()

	assert.Equal(t, Location{Country: "KE", Region: "30"}, g.Lookup(net.ParseIP("41.90.12.7")))
	assert.Equal(t, "NG", g.Country(net.ParseIP("102.88.1.1")))
	assert.Equal(t, "LA", g.Region(net.ParseIP("102.88.1.1")))
	assert.Equal(t, Location{}, g.Lookup(net.ParseIP("8.8.8.8")))
}

func TestInit_MissingFile(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "absent.mmdb"))
	assert.Error(t, err)
}

func TestInit_GarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte("definitely not geo data"), 0o644))
	_, err := Init(path)
	assert.Error(t, err)
}

func TestNilGeoIP(t *testing.T) {
	var g *GeoIP
	assert.Equal(t, Location{}, g.Lookup(net.ParseIP("41.90.12.7")))
	assert.NoError(t, g.Close())
}
