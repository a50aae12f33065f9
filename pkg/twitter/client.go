package twitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/iconidentify/xstash/internal/domain"
)

const (
	// DefaultAPIBaseURL is the JSON mirror used for structured lookups.
	DefaultAPIBaseURL = "https://api.fxtwitter.com"
	// DefaultSyndicationURL is the public embed lookup endpoint.
	DefaultSyndicationURL = "https://cdn.syndication.twimg.com/tweet-result"
	// DefaultAPIUserAgent identifies this client to the JSON mirror.
	DefaultAPIUserAgent = "xstash/1.0"
	// DefaultPageUserAgent is a mobile browser UA; X serves lighter HTML to it.
	DefaultPageUserAgent = "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"

	maxBodySize = 8 << 20
)

var (
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrEmptyBody is returned when a response carries no usable payload.
	ErrEmptyBody = errors.New("empty response body")
)

// ClientConfig configures Client endpoints.
type ClientConfig struct {
	APIBaseURL     string
	SyndicationURL string
	APIUserAgent   string
	PageUserAgent  string
	Timeout        time.Duration
}

// Client fetches post data from the JSON mirror, the syndication endpoint and
// plain HTML pages.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	logger     *slog.Logger
}

// NewClient creates a new client. Zero config fields take package defaults.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.SyndicationURL == "" {
		cfg.SyndicationURL = DefaultSyndicationURL
	}
	if cfg.APIUserAgent == "" {
		cfg.APIUserAgent = DefaultAPIUserAgent
	}
	if cfg.PageUserAgent == "" {
		cfg.PageUserAgent = DefaultPageUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// MediaResult is what the JSON mirror reports for a post.
type MediaResult struct {
	PhotoURLs []string
	VideoURLs []string
}

// FetchMedia retrieves photo and video URLs for a post from the JSON mirror.
// Photos use "url" falling back to "raw_url". Each video yields at most one
// URL: its direct "url" when present, else the highest-bitrate MP4 variant.
func (c *Client) FetchMedia(ctx context.Context, id domain.TweetID) (*MediaResult, error) {
	endpoint := fmt.Sprintf("%s/i/status/%s", c.cfg.APIBaseURL, id.String())

	body, err := c.getJSON(ctx, endpoint, c.cfg.APIUserAgent)
	if err != nil {
		return nil, err
	}

	media := gjson.GetBytes(body, "tweet.media")
	result := &MediaResult{}

	media.Get("photos").ForEach(func(_, photo gjson.Result) bool {
		u := photo.Get("url").String()
		if u == "" {
			u = photo.Get("raw_url").String()
		}
		result.PhotoURLs = domain.AppendUnique(result.PhotoURLs, u)
		return true
	})

	media.Get("videos").ForEach(func(_, video gjson.Result) bool {
		result.VideoURLs = domain.AppendUnique(result.VideoURLs, bestVideoURL(video))
		return true
	})

	return result, nil
}

// bestVideoURL prefers the direct URL of a video entry, otherwise the MP4
// variant with the highest declared bitrate.
func bestVideoURL(video gjson.Result) string {
	if direct := video.Get("url").String(); direct != "" {
		return direct
	}

	best := ""
	bestBitrate := int64(-1)
	video.Get("variants").ForEach(func(_, v gjson.Result) bool {
		if variantContentType(v) != "video/mp4" {
			return true
		}
		u := v.Get("url").String()
		if u == "" {
			u = v.Get("src").String()
		}
		if u == "" {
			return true
		}
		if br := v.Get("bitrate").Int(); br > bestBitrate {
			bestBitrate = br
			best = u
		}
		return true
	})
	return best
}

func variantContentType(v gjson.Result) string {
	for _, key := range []string{"content_type", "type", "contentType"} {
		if ct := v.Get(key).String(); ct != "" {
			return strings.ToLower(ct)
		}
	}
	return ""
}

// FetchAuthor looks up the author handle of a post via the syndication
// endpoint. It returns "" without error when the payload has no handle.
func (c *Client) FetchAuthor(ctx context.Context, id domain.TweetID) (string, error) {
	endpoint := fmt.Sprintf("%s?id=%s&token=0", c.cfg.SyndicationURL, id.String())

	body, err := c.getJSON(ctx, endpoint, c.cfg.PageUserAgent)
	if err != nil {
		return "", err
	}

	user := gjson.GetBytes(body, "user")
	for _, key := range []string{"screen_name", "username", "user_name", "handle"} {
		handle := strings.TrimSpace(user.Get(key).String())
		if handle == "" {
			continue
		}
		if handle == "i" {
			return "", nil
		}
		return handle, nil
	}
	return "", nil
}

// Page is a fetched HTML document plus the redirect evidence around it.
type Page struct {
	FinalURL string
	Location string
	Body     string
}

// FetchPage GETs an HTML page following redirects.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.PageUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Page{
		FinalURL: resp.Request.URL.String(),
		Location: resp.Header.Get("Location"),
		Body:     string(body),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("upstream returned non-success", "url", endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 || !gjson.ValidBytes(body) {
		return nil, ErrEmptyBody
	}
	return body, nil
}
