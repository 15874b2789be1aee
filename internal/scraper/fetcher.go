package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/painminer/internal/blockpage"
	"github.com/FranksOps/painminer/internal/fingerprint"
	"github.com/FranksOps/painminer/internal/metrics"
	"github.com/FranksOps/painminer/pkg/httpclient"
	"github.com/FranksOps/painminer/pkg/proxy"
	"github.com/FranksOps/painminer/pkg/ratelimit"
	"github.com/FranksOps/painminer/pkg/useragent"
)

const (
	DefaultBaseURL    = "https://www.reddit.com"
	DefaultUserAgent  = "PainMiner/1.0 (Startup Research)"
	DefaultLimit      = 50
	MaxLimit          = 100
	DefaultTimeWindow = "year"
	DefaultSort       = "relevance"
)

var (
	// ErrInvalidSource is returned for community names Reddit would reject.
	ErrInvalidSource = errors.New("invalid source name")
	// ErrBlocked is returned when a challenge or block page replaces the listing.
	ErrBlocked = errors.New("blocked response")

	sourceNameRe = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

	validTimeWindows = map[string]bool{"hour": true, "day": true, "week": true, "month": true, "year": true, "all": true}
)

// ValidSourceName reports whether name is a well-formed community name.
func ValidSourceName(name string) bool {
	return sourceNameRe.MatchString(name)
}

// RawPost is one search hit as returned by the source.
type RawPost struct {
	NativeID    string  `json:"id"`
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	Body        string  `json:"body"`
	Score       int     `json:"score"`
	NumComments int     `json:"numComments"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"createdUtc"`
}

// URL returns the canonical link to the post.
func (p RawPost) URL() string {
	return "https://reddit.com" + p.Permalink
}

// FetchConfig configures the source fetcher.
type FetchConfig struct {
	BaseURL     string
	UserAgent   string
	Limit       int
	TimeWindow  string
	Sort        string
	Timeout     time.Duration
	Fingerprint fingerprint.Profile
	Limiter     *ratelimit.Limiter
	// Proxies rotates requests across forward proxies when non-nil.
	Proxies *proxy.Pool
	// UserAgents replaces UserAgent with a browser string per request when
	// non-nil.
	UserAgents *useragent.Pool
	// Transport overrides the fingerprinted transport. It must route through
	// proxy.FromRequest itself if Proxies is set.
	Transport http.RoundTripper
}

// Fetcher queries a community's search endpoint.
type Fetcher struct {
	cfg       FetchConfig
	client    *httpclient.Client
	detectors []blockpage.Detector
	logger    *slog.Logger
}

// NewFetcher initializes a Fetcher. A single client is held across requests
// so connections are pooled.
func NewFetcher(cfg FetchConfig, logger *slog.Logger) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Limit > MaxLimit {
		cfg.Limit = MaxLimit
	}
	if cfg.TimeWindow == "" {
		cfg.TimeWindow = DefaultTimeWindow
	}
	if !validTimeWindows[cfg.TimeWindow] {
		return nil, fmt.Errorf("invalid time window %q", cfg.TimeWindow)
	}
	if cfg.Sort == "" {
		cfg.Sort = DefaultSort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		var err error
		var opts fingerprint.Options
		if cfg.Proxies != nil {
			opts.Proxy = proxy.FromRequest
		}
		transport, err = fingerprint.Transport(cfg.Fingerprint, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to setup transport: %w", err)
		}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Header:    http.Header{"Accept": {"application/json"}},
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		cfg:       cfg,
		client:    client,
		detectors: blockpage.DefaultDetectors(),
		logger:    logger,
	}, nil
}

// SearchURL builds the search request URL for source and query.
func (f *Fetcher) SearchURL(source, query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("sort", f.cfg.Sort)
	v.Set("t", f.cfg.TimeWindow)
	v.Set("limit", strconv.Itoa(f.cfg.Limit))
	v.Set("restrict_sr", "true")
	return fmt.Sprintf("%s/r/%s/search.json?%s", f.cfg.BaseURL, url.PathEscape(source), v.Encode())
}

// Fetch returns the posts matching query in source. Failures are logged and
// yield an empty result; Fetch never fails the caller.
func (f *Fetcher) Fetch(ctx context.Context, source, query string) []RawPost {
	start := time.Now()
	posts, err := f.Search(ctx, source, query)
	elapsed := time.Since(start)
	if err != nil {
		outcome := classify(err)
		metrics.RecordFetch(source, outcome, 0, elapsed)
		f.logger.Warn("source fetch failed",
			"source", source,
			"outcome", outcome,
			"duration", elapsed,
			"error", err,
		)
		return nil
	}

	metrics.RecordFetch(source, metrics.OutcomeOK, len(posts), elapsed)
	f.logger.Debug("source fetched", "source", source, "posts", len(posts), "duration", elapsed)
	return posts
}

// Search performs a single request against the source search endpoint.
func (f *Fetcher) Search(ctx context.Context, source, query string) ([]RawPost, error) {
	if !ValidSourceName(source) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	var posts []RawPost
	err := f.fetch(ctx, f.SearchURL(source, query), func(body []byte) error {
		var err error
		posts, err = decodeListing(body, source)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("r/%s: %w", source, err)
	}
	return posts, nil
}

// fetch waits for the limiter, picks a proxy, GETs target and hands the body
// to decode. The proxy is credited or benched on the combined outcome.
func (f *Fetcher) fetch(ctx context.Context, target string, decode func([]byte) error) error {
	if err := f.cfg.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var via *url.URL
	if f.cfg.Proxies != nil {
		var err error
		if via, err = f.cfg.Proxies.Next(); err != nil {
			return err
		}
		ctx = proxy.WithURL(ctx, via)
	}

	err := f.get(ctx, target, decode)
	if via != nil {
		f.reportProxy(via, err)
	}
	return err
}

func (f *Fetcher) get(ctx context.Context, target string, decode func([]byte) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if f.cfg.UserAgents != nil {
		req.Header.Set("User-Agent", f.cfg.UserAgents.Random())
	}

	resp, err := f.client.ReadAll(ctx, req)
	if resp != nil {
		page := blockpage.Page{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}
		if blocked, by := blockpage.Detect(page, f.detectors); blocked {
			return fmt.Errorf("%w by %s (status %d)", ErrBlocked, by, resp.StatusCode)
		}
	}
	if err != nil {
		return err
	}
	return decode(resp.Body)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode listing: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

type listing struct {
	Data struct {
		Children []struct {
			Kind string   `json:"kind"`
			Data linkData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type linkData struct {
	ID           string  `json:"id"`
	Subreddit    string  `json:"subreddit"`
	Title        string  `json:"title"`
	Selftext     string  `json:"selftext"`
	SelftextHTML *string `json:"selftext_html"`
	Score        int     `json:"score"`
	NumComments  int     `json:"num_comments"`
	Permalink    string  `json:"permalink"`
	CreatedUTC   float64 `json:"created_utc"`
}

func decodeListing(body []byte, source string) ([]RawPost, error) {
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, &decodeError{err: err}
	}

	posts := make([]RawPost, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		d := c.Data
		if d.ID == "" {
			continue
		}
		text := d.Selftext
		if text == "" && d.SelftextHTML != nil {
			text = htmlToText(*d.SelftextHTML)
		}
		posts = append(posts, RawPost{
			NativeID:    d.ID,
			Source:      source,
			Title:       d.Title,
			Body:        text,
			Score:       d.Score,
			NumComments: d.NumComments,
			Permalink:   d.Permalink,
			CreatedUTC:  d.CreatedUTC,
		})
	}
	return posts, nil
}

// reportProxy benches proxies that got blocked or could not complete the
// request. Bad statuses and undecodable bodies are not the proxy's fault.
func (f *Fetcher) reportProxy(via *url.URL, err error) {
	var statusErr *httpclient.StatusError
	var decErr *decodeError
	switch {
	case err == nil, errors.As(err, &statusErr), errors.As(err, &decErr):
		f.cfg.Proxies.MarkSuccess(via)
	case errors.Is(err, context.Canceled):
	default:
		if f.cfg.Proxies.MarkFailure(via) {
			f.logger.Warn("proxy benched", "proxy", via.Redacted(), "error", err)
		}
	}
}

func classify(err error) string {
	var statusErr *httpclient.StatusError
	var decErr *decodeError
	switch {
	case errors.Is(err, ErrInvalidSource):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrBlocked):
		return metrics.OutcomeBlocked
	case errors.As(err, &statusErr):
		return metrics.OutcomeStatus
	case errors.As(err, &decErr):
		return metrics.OutcomeDecode
	default:
		return metrics.OutcomeError
	}
}
