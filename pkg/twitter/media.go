package twitter

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/iconidentify/xstash/internal/domain"
)

// MediaHostPath identifies photo URLs on the X media CDN.
const MediaHostPath = "pbs.twimg.com/media/"

var (
	// Media URLs as they appear inside JSON string literals (https:\/\/...).
	escapedMediaRe = regexp.MustCompile(`https?:\\/\\/pbs\.twimg\.com\\/media\\/[A-Za-z0-9_.-]+(?:\?[^"' <\\]*)?`)
	plainMediaRe   = regexp.MustCompile(`https?://pbs\.twimg\.com/media/[A-Za-z0-9_.-]+(?:\?[^"' <\\]*)?`)

	formatExtRe = regexp.MustCompile(`^[a-zA-Z0-9]{3,5}$`)
)

// IsMediaHostURL reports whether raw points at the X photo CDN.
func IsMediaHostURL(raw string) bool {
	return strings.Contains(raw, MediaHostPath)
}

// NormalizeMediaURL rewrites a photo CDN URL to request the original
// resolution: the query is replaced by format=<fmt>&name=orig. Other URLs
// are returned URL-decoded and otherwise untouched. Applying it twice yields
// the same result as applying it once.
func NormalizeMediaURL(raw string) string {
	decoded := decodeURL(raw)
	if !IsMediaHostURL(decoded) {
		return decoded
	}

	u, err := url.Parse(decoded)
	if err != nil {
		return decoded
	}

	format := u.Query().Get("format")
	if format == "" {
		if ext := strings.TrimPrefix(path.Ext(u.Path), "."); formatExtRe.MatchString(ext) {
			format = ext
		}
	}

	q := url.Values{}
	if format != "" {
		q.Set("format", strings.ToLower(format))
	}
	q.Set("name", "orig")
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// FindMediaURLs scans text (HTML, JSON or plain) for photo CDN URLs in both
// escaped and plain form. Results are decoded, deduplicated and in order of
// first appearance, escaped matches first.
func FindMediaURLs(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []string
	for _, m := range escapedMediaRe.FindAllString(text, -1) {
		out = domain.AppendUnique(out, cleanScrapedURL(strings.ReplaceAll(m, `\/`, "/")))
	}
	for _, m := range plainMediaRe.FindAllString(text, -1) {
		out = domain.AppendUnique(out, cleanScrapedURL(m))
	}
	return out
}

func cleanScrapedURL(s string) string {
	s = decodeURL(s)
	s = strings.ReplaceAll(s, `\u0026`, "&")
	return strings.ReplaceAll(s, "&amp;", "&")
}

func decodeURL(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
