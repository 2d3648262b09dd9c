// Package fingerprint derives a coarse, stable identity for the device and
// network a request comes from. Versions are dropped and addresses are masked
// so that browser updates and DHCP churn inside the same network do not look
// like a new context.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// Unknown is used for every component that cannot be derived.
const Unknown = "unknown"

const (
	ipv4PrefixBits = 24
	ipv6PrefixBits = 64
)

// Fingerprint identifies a login context.
type Fingerprint struct {
	BrowserFamily string `json:"browser"`
	OSFamily      string `json:"os"`
	NetworkOrigin string `json:"network"`
}

// Build derives a Fingerprint from a User-Agent string and a remote address.
// remoteAddr may be "ip", "ip:port" or "[ipv6]:port". It never fails; any
// missing piece becomes [Unknown].
func Build(userAgent, remoteAddr string) Fingerprint {
	browser, os := parseUserAgent(userAgent)
	return Fingerprint{
		BrowserFamily: browser,
		OSFamily:      os,
		NetworkOrigin: NetworkOrigin(remoteAddr),
	}
}

// FromRequest builds a Fingerprint from r. When trustForwarded is set the
// first X-Forwarded-For hop is used as the client address.
func FromRequest(r *http.Request, trustForwarded bool) Fingerprint {
	if r == nil {
		return Build("", "")
	}
	return Build(r.UserAgent(), ClientIP(r, trustForwarded))
}

// ClientIP returns the client address of r without the port.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if r == nil {
		return ""
	}
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Key is a stable hex digest of the canonical form, used as the uniqueness
// key for (user, fingerprint) pairs.
func (f Fingerprint) Key() string {
	sum := sha256.Sum256([]byte(f.canonical()))
	return hex.EncodeToString(sum[:])
}

func (f Fingerprint) String() string {
	return f.canonical()
}

func (f Fingerprint) canonical() string {
	return normalize(f.BrowserFamily) + "|" + normalize(f.OSFamily) + "|" + normalize(f.NetworkOrigin)
}

// Normalized returns f with empty components replaced by [Unknown].
func (f Fingerprint) Normalized() Fingerprint {
	return Fingerprint{
		BrowserFamily: normalize(f.BrowserFamily),
		OSFamily:      normalize(f.OSFamily),
		NetworkOrigin: normalize(f.NetworkOrigin),
	}
}

// NetworkOrigin masks addr to a /24 (IPv4) or /64 (IPv6) prefix.
func NetworkOrigin(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Unknown
	}

	ip, err := netip.ParseAddrPort(addr)
	var a netip.Addr
	if err == nil {
		a = ip.Addr()
	} else {
		a, err = netip.ParseAddr(strings.Trim(addr, "[]"))
		if err != nil {
			return Unknown
		}
	}
	a = a.Unmap().WithZone("")

	bits := ipv6PrefixBits
	if a.Is4() {
		bits = ipv4PrefixBits
	}
	prefix, err := a.Prefix(bits)
	if err != nil {
		return Unknown
	}
	return prefix.String()
}

func parseUserAgent(raw string) (browser, os string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Unknown, Unknown
	}

	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if ua.Bot() && name == "" {
		name = "bot"
	}

	return normalize(name), normalize(ua.OSInfo().Name)
}

func normalize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return Unknown
	}
	return v
}
