package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/painminer/internal/fingerprint"
	"github.com/FranksOps/painminer/pkg/httpclient"
	"github.com/FranksOps/painminer/pkg/proxy"
	"github.com/FranksOps/painminer/pkg/useragent"
)

const listingJSON = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {
        "id": "abc1", "title": "Our bank makes onboarding a nightmare",
        "selftext": "Is there a tool for this? I hate the manual process.",
        "score": 42, "num_comments": 7,
        "permalink": "/r/CreditUnions/comments/abc1/x/", "created_utc": 1700000000.0
      }},
      {"kind": "t3", "data": {
        "id": "abc2", "title": "Link post", "selftext": "",
        "selftext_html": "&lt;!-- SC_OFF --&gt;&lt;div class=\"md\"&gt;&lt;p&gt;First paragraph.&lt;/p&gt;&lt;ul&gt;&lt;li&gt;item one&lt;/li&gt;&lt;/ul&gt;&lt;/div&gt;&lt;!-- SC_ON --&gt;",
        "score": 3, "num_comments": 0,
        "permalink": "/r/CreditUnions/comments/abc2/y/", "created_utc": 1700000100.0
      }},
      {"kind": "t3", "data": {"title": "no id"}}
    ]
  }
}`

func newTestFetcher(t *testing.T, baseURL string, timeout time.Duration) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetchConfig{
		BaseURL:     baseURL,
		Timeout:     timeout,
		Fingerprint: fingerprint.ProfileGo,
	}, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/CreditUnions/search.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "member onboarding" || q.Get("sort") != "relevance" || q.Get("t") != "year" ||
			q.Get("limit") != "50" || q.Get("restrict_sr") != "true" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("expected User-Agent %q, got %q", DefaultUserAgent, ua)
		}
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_, _ = w.Write([]byte(listingJSON))
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL, 5*time.Second)
	posts, err := f.Search(context.Background(), "CreditUnions", "member onboarding")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}

	p := posts[0]
	if p.NativeID != "abc1" || p.Source != "CreditUnions" || p.Score != 42 || p.NumComments != 7 {
		t.Errorf("unexpected first post: %+v", p)
	}
	if p.URL() != "https://reddit.com/r/CreditUnions/comments/abc1/x/" {
		t.Errorf("unexpected URL %s", p.URL())
	}
	if p.CreatedUTC != 1700000000 {
		t.Errorf("unexpected created_utc %v", p.CreatedUTC)
	}

	if posts[1].Body != "First paragraph.\nitem one" {
		t.Errorf("expected body recovered from html, got %q", posts[1].Body)
	}
}

func TestFetcher_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(error) bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			check: func(err error) bool {
				var se *httpclient.StatusError
				return errors.As(err, &se) && se.StatusCode == 500
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			check: func(err error) bool { return errors.Is(err, ErrBlocked) },
		},
		{
			name: "html block page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html><body>blocked by network security</body></html>"))
			},
			check: func(err error) bool { return errors.Is(err, ErrBlocked) },
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"data": {"children": [`))
			},
			check: func(err error) bool {
				var de *decodeError
				return errors.As(err, &de)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			f := newTestFetcher(t, ts.URL, 5*time.Second)
			_, err := f.Search(context.Background(), "smallbusiness", "invoice")
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}

			if posts := f.Fetch(context.Background(), "smallbusiness", "invoice"); len(posts) != 0 {
				t.Errorf("expected empty result, got %d posts", len(posts))
			}
		})
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(listingJSON))
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL, 10*time.Millisecond)
	if _, err := f.Search(context.Background(), "smallbusiness", "x"); err == nil {
		t.Fatal("expected timeout error")
	}
	if posts := f.Fetch(context.Background(), "smallbusiness", "x"); len(posts) != 0 {
		t.Errorf("expected empty result on timeout")
	}
}

func TestFetcher_InvalidSourceMakesNoRequest(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	f := newTestFetcher(t, ts.URL, time.Second)
	for _, name := range []string{"", "a", "has space", "../admin", strings.Repeat("x", 22)} {
		if _, err := f.Search(context.Background(), name, "q"); !errors.Is(err, ErrInvalidSource) {
			t.Errorf("Search(%q): expected ErrInvalidSource, got %v", name, err)
		}
	}
	if hits != 0 {
		t.Errorf("expected no requests, got %d", hits)
	}
}

func TestFetcher_SearchURL(t *testing.T) {
	f, err := NewFetcher(FetchConfig{BaseURL: "https://example.test/", Limit: 500, TimeWindow: "month"}, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	got := f.SearchURL("startups", "manual & slow")
	want := "https://example.test/r/startups/search.json?limit=100&q=manual+%26+slow&restrict_sr=true&sort=relevance&t=month"
	if got != want {
		t.Errorf("SearchURL() = %s, want %s", got, want)
	}

	if _, err := NewFetcher(FetchConfig{TimeWindow: "decade"}, nil); err == nil {
		t.Error("expected error for invalid time window")
	}
}

func TestHTMLToText(t *testing.T) {
	in := "&lt;div class=\"md\"&gt;&lt;p&gt;Hello &amp;amp; welcome&lt;/p&gt;&lt;pre&gt;code&lt;/pre&gt;&lt;/div&gt;"
	if got := htmlToText(in); got != "Hello & welcome\ncode" {
		t.Errorf("htmlToText() = %q", got)
	}
	if got := htmlToText("plain words"); got != "plain words" {
		t.Errorf("htmlToText() fallback = %q", got)
	}
}

func TestFetcher_ProxyRotation(t *testing.T) {
	var blockedHits, goodHits atomic.Int32
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blockedHits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer blocked.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodHits.Add(1)
		if !strings.HasPrefix(r.RequestURI, "http://reddit.test/r/smallbusiness/search.json") {
			t.Errorf("proxy got request URI %q", r.RequestURI)
		}
		if ua := r.Header.Get("User-Agent"); ua != "Mozilla/5.0 (test) Firefox/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		_, _ = w.Write([]byte(listingJSON))
	}))
	defer good.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Hour})
	if err := pool.Add(blocked.URL, good.URL); err != nil {
		t.Fatal(err)
	}
	f, err := NewFetcher(FetchConfig{
		BaseURL:    "http://reddit.test",
		Proxies:    pool,
		UserAgents: useragent.NewPool([]string{"Mozilla/5.0 (test) Firefox/1.0"}),
	}, nil)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}

	if posts := f.Fetch(context.Background(), "smallbusiness", "invoice"); len(posts) != 0 {
		t.Fatalf("blocked proxy returned %d posts", len(posts))
	}
	for i := 0; i < 2; i++ {
		if posts := f.Fetch(context.Background(), "smallbusiness", "invoice"); len(posts) != 2 {
			t.Fatalf("fetch #%d via healthy proxy returned %d posts", i, len(posts))
		}
	}

	if blockedHits.Load() != 1 || goodHits.Load() != 2 {
		t.Errorf("hits blocked=%d good=%d, want 1 and 2", blockedHits.Load(), goodHits.Load())
	}
	st := pool.Stats()
	if !st[0].Disabled || st[1].Successes != 2 {
		t.Errorf("pool stats = %+v", st)
	}
}

func TestFetcher_ProxiesExhausted(t *testing.T) {
	pool := proxy.NewPool(proxy.Config{})
	f, err := NewFetcher(FetchConfig{BaseURL: "http://reddit.test", Proxies: pool}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Search(context.Background(), "smallbusiness", "invoice"); !errors.Is(err, proxy.ErrExhausted) {
		t.Errorf("err = %v, want proxy.ErrExhausted", err)
	}
}
