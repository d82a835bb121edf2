package analytics

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/patrickwarner/pollwatch/internal/geoip"
)

// Submitter describes the client that triggered an event. It is derived from
// request headers only and never stored on the incident itself.
type Submitter struct {
	DeviceType string
	OS         string
	Browser    string
	IsBot      bool
	Country    string
	Region     string
}

// SubmitterFromUA parses a User-Agent header.
func SubmitterFromUA(ua string) Submitter {
	u := uasurfer.Parse(ua)

	var device string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		device = "desktop"
	case uasurfer.DevicePhone:
		device = "mobile"
	case uasurfer.DeviceTablet:
		device = "tablet"
	default:
		device = "other"
	}
	return Submitter{
		DeviceType: device,
		OS:         u.OS.Name.StringTrimPrefix(),
		Browser:    u.Browser.Name.StringTrimPrefix(),
		IsBot:      u.IsBot(),
	}
}

// SubmitterFromRequest combines the User-Agent with a GeoIP lookup of the
// client address. g may be nil.
func SubmitterFromRequest(r *http.Request, g *geoip.GeoIP) Submitter {
	s := SubmitterFromUA(r.Header.Get("User-Agent"))
	if ip := ClientIP(r); ip != nil {
		loc := g.Lookup(ip)
		s.Country, s.Region = loc.Country, loc.Region
	}
	return s
}

// ClientIP returns the first X-Forwarded-For address, falling back to
// RemoteAddr.
func ClientIP(r *http.Request) net.IP {
	raw := r.Header.Get("X-Forwarded-For")
	if raw != "" {
		if idx := strings.Index(raw, ","); idx != -1 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	} else {
		raw = r.RemoteAddr
		if host, _, err := net.SplitHostPort(raw); err == nil {
			raw = host
		}
	}
	return net.ParseIP(raw)
}
