package domain

import (
	"strconv"
)

// TweetID is the numeric snowflake identifier of a post. Zero means absent.
type TweetID int64

// String returns the decimal form of the ID, or "" when absent.
func (id TweetID) String() string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(int64(id), 10)
}

// IsZero reports whether the ID is absent.
func (id TweetID) IsZero() bool {
	return id == 0
}

// PostReference is what the pipeline knows about a shared post before any
// remote lookup happens.
type PostReference struct {
	RawURL     string  `json:"raw_url"`
	PostID     TweetID `json:"post_id,omitempty"`
	SharedText string  `json:"shared_text,omitempty"`
}

// HasID reports whether a post identifier was parsed from the reference.
func (r PostReference) HasID() bool {
	return r.PostID != 0
}

// MediaResolution is the merged output of the extraction cascade.
// Slices are ordered by priority and contain no duplicates.
type MediaResolution struct {
	PhotoURLs    []string `json:"photo_urls"`
	VideoURLs    []string `json:"video_urls"`
	CanonicalURL string   `json:"canonical_url,omitempty"`
}

// All returns photos followed by videos.
func (m MediaResolution) All() []string {
	out := make([]string, 0, len(m.PhotoURLs)+len(m.VideoURLs))
	out = append(out, m.PhotoURLs...)
	return append(out, m.VideoURLs...)
}

// IsEmpty reports whether nothing was resolved.
func (m MediaResolution) IsEmpty() bool {
	return len(m.PhotoURLs) == 0 && len(m.VideoURLs) == 0
}

// AppendUnique appends the non-empty values of add to dst that are not
// already present, preserving order.
func AppendUnique(dst []string, add ...string) []string {
	seen := make(map[string]bool, len(dst)+len(add))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range add {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		dst = append(dst, s)
	}
	return dst
}
