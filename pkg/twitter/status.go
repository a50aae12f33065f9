package twitter

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/xstash/internal/domain"
)

// Epoch is the X snowflake epoch in Unix milliseconds.
const Epoch int64 = 1288834974657

var (
	// Matches https://x.com/user/status/1, https://twitter.com/i/status/1,
	// https://x.com/i/web/status/1 and the same with query strings.
	statusIDRe = regexp.MustCompile(`(?:x|twitter)\.com/(?:\w+|i|i/web)/status/(\d+)`)

	// First X/Twitter URL in free text.
	statusURLRe = regexp.MustCompile(`https://(?:x|twitter)\.com/[^\s]+`)

	// Handle segment of a canonical status URL.
	usernameRe = regexp.MustCompile(`https?://(?:www\.|mobile\.)?(?:x|twitter)\.com/([A-Za-z0-9_]+)/status/\d+`)
)

// ExtractTweetID extracts the tweet ID from various URL formats.
// It returns false when the text carries no status link or the ID does not
// fit in 63 bits.
func ExtractTweetID(text string) (domain.TweetID, bool) {
	m := statusIDRe.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return domain.TweetID(id), true
}

// ExtractStatusURL returns the first X/Twitter URL found in text, or "".
func ExtractStatusURL(text string) string {
	return statusURLRe.FindString(text)
}

// TweetIDToPostedAt derives the creation time in Unix milliseconds from the
// timestamp bits of a snowflake ID.
func TweetIDToPostedAt(id domain.TweetID) int64 {
	return (int64(id) >> 22) + Epoch
}

// PostedAt is TweetIDToPostedAt as a time.Time. Zero IDs yield the zero time.
func PostedAt(id domain.TweetID) time.Time {
	if id == 0 {
		return time.Time{}
	}
	return time.UnixMilli(TweetIDToPostedAt(id)).UTC()
}

// ParseReference builds a PostReference from shared text. RawURL is the
// first X URL in the text, or the text itself when it has none.
func ParseReference(text string) domain.PostReference {
	raw := ExtractStatusURL(text)
	if raw == "" {
		raw = strings.TrimSpace(text)
	}
	ref := domain.PostReference{RawURL: raw, SharedText: text}
	if id, ok := ExtractTweetID(raw); ok {
		ref.PostID = id
	} else if id, ok := ExtractTweetID(text); ok {
		ref.PostID = id
	}
	return ref
}

// UsernameFromURL returns the handle in a status URL. The "i" pseudo-handle
// of placeholder links is never returned.
func UsernameFromURL(raw string) string {
	m := usernameRe.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	if strings.EqualFold(m[1], "i") {
		return ""
	}
	return m[1]
}

// IsPlaceholderURL reports whether raw is an /i/status/ link.
func IsPlaceholderURL(raw string) bool {
	return strings.Contains(raw, domain.PlaceholderStatusPath)
}

// IsCanonicalPostURL reports whether raw links a post under its author's
// handle. Placeholder links and non-post pages such as login walls are not.
func IsCanonicalPostURL(raw string) bool {
	if raw == "" || IsPlaceholderURL(raw) {
		return false
	}
	_, ok := ExtractTweetID(raw)
	return ok
}

// StatusURL returns the placeholder status URL for id.
func StatusURL(id domain.TweetID) string {
	return "https://x.com/i/status/" + id.String()
}

// MirrorURL rewrites an x.com or twitter.com URL onto mirrorBase, keeping
// path and query. It returns "" if raw is not an X URL.
func MirrorURL(raw, mirrorBase string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "mobile.")
	if host != "x.com" && host != "twitter.com" {
		return ""
	}
	base, err := url.Parse(mirrorBase)
	if err != nil || base.Host == "" {
		return ""
	}
	u.Scheme = base.Scheme
	u.Host = base.Host
	return u.String()
}
