package domain

import (
	"net/url"
	"strings"
)

const (
	minURLLength  = 5
	minHostLength = 4
)

// NormalizeURL prepends https:// when the input carries no http(s) scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + raw
}

// IsValidURL applies the link acceptance policy: after normalization the URL
// must be at least 5 characters and the part following the scheme at least 4.
// Anything that long is accepted; no platform checks are made.
func IsValidURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	normalized := NormalizeURL(raw)
	if len(normalized) < minURLLength {
		return false
	}
	rest := normalized[strings.Index(normalized, "://")+3:]
	return len(rest) >= minHostLength
}

var platforms = []struct {
	name  string
	hosts []string
}{
	{"YouTube", []string{"youtube.com", "youtu.be"}},
	{"Vimeo", []string{"vimeo.com"}},
	{"Instagram", []string{"instagram.com"}},
	{"TikTok", []string{"tiktok.com"}},
	{"X", []string{"x.com", "twitter.com"}},
	{"Facebook", []string{"facebook.com", "fb.watch"}},
	{"Dailymotion", []string{"dailymotion.com", "dai.ly"}},
	{"Aparat", []string{"aparat.com"}},
	{"Telegram", []string{"t.me"}},
}

// DetectPlatform names the hosting site of a link for display. It returns ""
// for unknown hosts and is never used to accept or reject a link.
func DetectPlatform(raw string) string {
	u, err := url.Parse(NormalizeURL(raw))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	for _, p := range platforms {
		for _, h := range p.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p.name
			}
		}
	}
	return ""
}
