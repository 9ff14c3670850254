// Package validate classifies input strings as acceptable reel/video URLs.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/iconidentify/reelscribe/internal/domain"
)

// MaxURLLength is the longest URL accepted.
const MaxURLLength = 2048

// platformDomains maps accepted registrable domains to their platform.
var platformDomains = map[string]string{
	"instagram.com": "instagram",
	"instagr.am":    "instagram",
	"tiktok.com":    "tiktok",
	"facebook.com":  "facebook",
	"fb.com":        "facebook",
	"fb.watch":      "facebook",
}

// URL returns nil when raw is an acceptable video URL, or an InvalidURL error.
func URL(raw string) error {
	_, err := Platform(raw)
	return err
}

// Platform validates raw and returns the platform it belongs to.
func Platform(raw string) (string, error) {
	if len(raw) > MaxURLLength {
		return "", invalid("URL exceeds %d characters", MaxURLLength)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", invalid("malformed URL")
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", invalid("URL must start with http:// or https://")
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", invalid("URL has no host")
	}

	for d, platform := range platformDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return platform, nil
		}
	}

	return "", invalid("unsupported host %s (supported: Instagram, TikTok, Facebook)", host)
}

func invalid(format string, args ...any) error {
	return domain.NewError(domain.KindInvalidURL, "", fmt.Errorf(format, args...))
}
