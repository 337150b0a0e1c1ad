// Package validation checks image URLs before the thumbnail cache downloads
// them.
//
// Thumbnail URLs come from product listings, so a compromised or misconfigured
// server could point the CLI at internal addresses. ImageURL rejects cloud
// metadata endpoints always and loopback or private IP literals unless they
// belong to the API host itself or OPENMARKET_ALLOW_PRIVATE is set (accepts
// any value recognized by strconv.ParseBool).
package validation

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// allowPrivate controls whether private/localhost URLs are permitted.
var allowPrivate atomic.Bool

// privateNetworks holds the reserved ranges checked for IP literals.
var privateNetworks []*net.IPNet

func init() {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("OPENMARKET_ALLOW_PRIVATE")))
	allowPrivate.Store(v)

	privateCIDRs := []string{
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"100.64.0.0/10",  // RFC6598 - Shared Address Space
		"169.254.0.0/16", // RFC3927 - Link Local
		"fc00::/7",       // RFC4193 - Unique Local Addresses
		"fe80::/10",      // RFC4291 - Link Local
	}
	privateNetworks = make([]*net.IPNet, 0, len(privateCIDRs))
	for _, cidr := range privateCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// SetAllowPrivate enables or disables private and localhost image URLs.
// Cloud metadata endpoints stay blocked either way.
func SetAllowPrivate(enabled bool) {
	allowPrivate.Store(enabled)
}

// AllowPrivateEnabled reports whether private and localhost URLs are allowed.
func AllowPrivateEnabled() bool {
	return allowPrivate.Load()
}

// ImageURL validates rawURL for download. apiHost is the configured API host
// (host or host:port); image URLs on that host are always allowed so a local
// development server can serve its own thumbnails.
//
// Domain names are not resolved: product images normally live on a CDN and a
// lookup per image would double the DNS traffic of a prefetch.
func ImageURL(rawURL, apiHost string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("image URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid image URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid image URL scheme: only http and https are allowed, got %q", u.Scheme)
	}
	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return fmt.Errorf("image URL must contain a hostname")
	}

	if isCloudMetadata(hostname) {
		return fmt.Errorf("image URL %s: cloud metadata endpoints are not allowed", rawURL)
	}
	if allowPrivate.Load() || hostname == apiHostname(apiHost) {
		return nil
	}
	if isLocalhost(hostname) {
		return fmt.Errorf("image URL %s: localhost is not allowed", rawURL)
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if ip.IsUnspecified() || ip.IsLoopback() || isPrivateIP(ip) {
			return fmt.Errorf("image URL %s: private IP addresses are not allowed", rawURL)
		}
	}
	return nil
}

func apiHostname(apiHost string) string {
	apiHost = strings.TrimSpace(apiHost)
	if h, _, err := net.SplitHostPort(apiHost); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(strings.Trim(apiHost, "[]"))
}

func isLocalhost(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0", "::":
		return true
	}
	return strings.HasSuffix(hostname, ".localhost")
}

func isCloudMetadata(hostname string) bool {
	switch hostname {
	case "169.254.169.254", // AWS, Azure, GCP, DigitalOcean
		"metadata.google.internal", // GCP
		"metadata",
		"instance-data", // AWS
		"fd00:ec2::254": // AWS IPv6
		return true
	}
	return strings.HasSuffix(hostname, ".metadata.google.internal")
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
