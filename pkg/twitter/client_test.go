package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(ClientConfig{
		APIBaseURL:     server.URL,
		SyndicationURL: server.URL + "/tweet-result",
	}, testLogger())
}

// =============================================================================
// Unit Tests - Structured API
// =============================================================================

func TestFetchMedia_PhotosAndBestVideo(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/i/status/123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"code":200,"tweet":{"media":{
			"photos":[
				{"url":"https://pbs.twimg.com/media/A.jpg"},
				{"raw_url":"https://pbs.twimg.com/media/B.jpg"},
				{"url":"https://pbs.twimg.com/media/A.jpg"},
				{}
			],
			"videos":[
				{"variants":[
					{"content_type":"video/mp4","bitrate":632000,"url":"https://video.twimg.com/low.mp4"},
					{"content_type":"application/x-mpegURL","url":"https://video.twimg.com/pl.m3u8"},
					{"content_type":"video/mp4","bitrate":2176000,"url":"https://video.twimg.com/high.mp4"},
					{"type":"video/mp4","bitrate":950000,"url":"https://video.twimg.com/mid.mp4"}
				]},
				{"url":"https://video.twimg.com/direct.mp4","variants":[
					{"content_type":"video/mp4","bitrate":9999999,"url":"https://video.twimg.com/ignored.mp4"}
				]}
			]
		}}}`)
	}))
	defer server.Close()

	client := newTestClient(server)
	res, err := client.FetchMedia(context.Background(), 123)
	if err != nil {
		t.Fatalf("FetchMedia failed: %v", err)
	}

	wantPhotos := []string{"https://pbs.twimg.com/media/A.jpg", "https://pbs.twimg.com/media/B.jpg"}
	if fmt.Sprint(res.PhotoURLs) != fmt.Sprint(wantPhotos) {
		t.Errorf("PhotoURLs = %v, want %v", res.PhotoURLs, wantPhotos)
	}
	wantVideos := []string{"https://video.twimg.com/high.mp4", "https://video.twimg.com/direct.mp4"}
	if fmt.Sprint(res.VideoURLs) != fmt.Sprint(wantVideos) {
		t.Errorf("VideoURLs = %v, want %v", res.VideoURLs, wantVideos)
	}
	if gotUA != DefaultAPIUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultAPIUserAgent)
	}
}

func TestFetchMedia_MissingFields(t *testing.T) {
	bodies := map[string]string{
		"no tweet":    `{"code":404}`,
		"no media":    `{"tweet":{"text":"hi"}}`,
		"media null":  `{"tweet":{"media":null}}`,
		"wrong types": `{"tweet":{"media":{"photos":"nope","videos":7}}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer server.Close()

			res, err := newTestClient(server).FetchMedia(context.Background(), 1)
			if err != nil {
				t.Fatalf("FetchMedia failed: %v", err)
			}
			if len(res.PhotoURLs) != 0 || len(res.VideoURLs) != 0 {
				t.Errorf("expected empty result, got %+v", res)
			}
		})
	}
}

func TestFetchMedia_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"code":404}`, ErrUnexpectedStatus},
		{"server error", http.StatusInternalServerError, "", ErrUnexpectedStatus},
		{"empty body", http.StatusOK, "", ErrEmptyBody},
		{"invalid json", http.StatusOK, "<html>rate limited</html>", ErrEmptyBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient(server).FetchMedia(context.Background(), 1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Unit Tests - Syndication author
// =============================================================================

func TestFetchAuthor(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"screen_name", `{"user":{"screen_name":"alice"}}`, "alice"},
		{"username alias", `{"user":{"username":"bob"}}`, "bob"},
		{"user_name alias", `{"user":{"user_name":"carol"}}`, "carol"},
		{"handle alias", `{"user":{"handle":"dave"}}`, "dave"},
		{"screen_name wins", `{"user":{"screen_name":"erin","username":"other"}}`, "erin"},
		{"blank falls through", `{"user":{"screen_name":"  ","handle":"frank"}}`, "frank"},
		{"i rejected", `{"user":{"screen_name":"i"}}`, ""},
		{"no user", `{"id_str":"1"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/tweet-result" || r.URL.Query().Get("id") != "99" {
					t.Errorf("unexpected request %s", r.URL.String())
				}
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			got, err := newTestClient(server).FetchAuthor(context.Background(), 99)
			if err != nil {
				t.Fatalf("FetchAuthor failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("FetchAuthor() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Unit Tests - Pages
// =============================================================================

func TestFetchPage_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/i/status/5", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/alice/status/5", http.StatusFound)
	})
	mux.HandleFunc("/alice/status/5", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "Mobile") {
			t.Errorf("expected mobile user agent, got %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, "<html>ok</html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page, err := newTestClient(server).FetchPage(context.Background(), server.URL+"/i/status/5")
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if page.FinalURL != server.URL+"/alice/status/5" {
		t.Errorf("FinalURL = %q", page.FinalURL)
	}
	if page.Body != "<html>ok</html>" {
		t.Errorf("Body = %q", page.Body)
	}
}

func TestFetchPage_NonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server).FetchPage(context.Background(), server.URL)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("err = %v, want ErrUnexpectedStatus", err)
	}
}
