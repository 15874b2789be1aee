// Package blockpage recognizes responses where a JSON API answered with a
// challenge or block page instead of data.
package blockpage

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of an HTTP response the detectors look at.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether p is a block page and names who served it.
type Detector func(p Page) (blocked bool, source string)

// DefaultDetectors returns the detectors applied to source fetches.
func DefaultDetectors() []Detector {
	return []Detector{
		detectReddit,
		detectCloudflare,
		detectDataDome,
		detectHTML,
	}
}

// Detect runs p through detectors and returns the first match.
func Detect(p Page, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if blocked, source := d(p); blocked {
			return true, source
		}
	}
	return false, ""
}

// detectReddit matches the rate-limit and network-security pages Reddit
// serves to clients it refuses.
func detectReddit(p Page) (bool, string) {
	if bytes.Contains(p.Body, []byte("whoa there, pardner!")) ||
		bytes.Contains(p.Body, []byte("blocked by network security")) {
		return true, "Reddit"
	}
	if p.StatusCode == http.StatusTooManyRequests {
		return true, "Reddit"
	}
	return false, ""
}

func detectCloudflare(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(p.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(p.Body, []byte("cf-turnstile")) ||
		bytes.Contains(p.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectDataDome(p Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if p.Header.Get("X-DataDome") != "" || strings.Contains(strings.ToLower(p.Header.Get("Server")), "datadome") {
		return true, "DataDome"
	}
	if bytes.Contains(p.Body, []byte("geo.captcha-delivery.com")) {
		return true, "DataDome"
	}
	return false, ""
}

// detectHTML flags any HTML document served where JSON was expected.
func detectHTML(p Page) (bool, string) {
	ct := strings.ToLower(p.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "text/html") {
		return true, "html"
	}
	trimmed := bytes.TrimSpace(p.Body)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return true, "html"
	}
	return false, ""
}
