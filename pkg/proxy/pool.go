// Package proxy rotates outbound requests across a pool of forward proxies
// and benches proxies that keep failing.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrExhausted is returned by Next when every proxy is cooling down.
var ErrExhausted = errors.New("proxy: no healthy proxy available")

type entry struct {
	url           *url.URL
	failures      int
	successes     int
	disabledUntil time.Time
}

// Stats is a point-in-time view of one proxy.
type Stats struct {
	URL       string
	Failures  int
	Successes int
	Disabled  bool
}

// Config tunes health tracking.
type Config struct {
	// MaxFailures consecutive-ish failures bench a proxy; a success forgives one.
	MaxFailures int
	// Cooldown is how long a benched proxy is skipped.
	Cooldown time.Duration
}

// Pool hands out proxies round-robin. It is safe for concurrent use.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{maxFailures: cfg.MaxFailures, cooldown: cfg.Cooldown, now: time.Now}
}

// LoadFile adds one proxy URL per line. Blank lines and # comments are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list %s: %w", path, err)
	}
	return p.Add(urls...)
}

// Add parses and appends proxies. A missing scheme defaults to http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*entry, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("parse proxy %q: missing host", raw)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	p.entries = append(p.entries, parsed...)
	p.mu.Unlock()
	return nil
}

// Len returns the number of configured proxies, healthy or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not cooling down.
func (p *Pool) Next() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.disabledUntil.IsZero() {
			if now.Before(e.disabledUntil) {
				continue
			}
			e.disabledUntil = time.Time{}
			e.failures = 0
		}
		return e.url, nil
	}
	return nil, ErrExhausted
}

// MarkSuccess credits u and forgives one earlier failure.
func (p *Pool) MarkSuccess(u *url.URL) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.find(u); e != nil {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
	}
}

// MarkFailure records a failure against u and benches it for the cooldown
// once MaxFailures is reached. It reports whether u was benched.
func (p *Pool) MarkFailure(u *url.URL) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(u)
	if e == nil {
		return false
	}
	e.failures++
	if e.failures >= p.maxFailures {
		e.disabledUntil = p.now().Add(p.cooldown)
		return true
	}
	return false
}

// Stats reports the health of every proxy in pool order.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	out := make([]Stats, len(p.entries))
	for i, e := range p.entries {
		out[i] = Stats{
			URL:       e.url.Redacted(),
			Failures:  e.failures,
			Successes: e.successes,
			Disabled:  now.Before(e.disabledUntil),
		}
	}
	return out
}

// find must be called with p.mu held.
func (p *Pool) find(u *url.URL) *entry {
	if u == nil {
		return nil
	}
	target := u.String()
	for _, e := range p.entries {
		if e.url.String() == target {
			return e
		}
	}
	return nil
}

type ctxKey struct{}

// WithURL routes requests made under ctx through u.
func WithURL(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromRequest is an http.Transport Proxy func returning the proxy chosen
// with WithURL, or nil for a direct connection.
func FromRequest(req *http.Request) (*url.URL, error) {
	u, _ := req.Context().Value(ctxKey{}).(*url.URL)
	return u, nil
}
