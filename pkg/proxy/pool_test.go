package proxy

import (
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustNext(t *testing.T, p *Pool) string {
	t.Helper()
	u, err := p.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return u.String()
}

func TestPool_RoundRobin(t *testing.T) {
	p := NewPool(Config{})
	if err := p.Add("127.0.0.1:8080", "http://127.0.0.1:8081", "socks5://127.0.0.1:9050"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	want := []string{
		"http://127.0.0.1:8080",
		"http://127.0.0.1:8081",
		"socks5://127.0.0.1:9050",
		"http://127.0.0.1:8080",
	}
	for i, w := range want {
		if got := mustNext(t, p); got != w {
			t.Errorf("Next #%d = %s, want %s", i, got, w)
		}
	}
}

func TestPool_Empty(t *testing.T) {
	p := NewPool(Config{})
	if _, err := p.Next(); !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
}

func TestPool_AddRejectsMissingHost(t *testing.T) {
	if err := NewPool(Config{}).Add("http://"); err == nil {
		t.Error("expected error for proxy without host")
	}
}

func TestPool_Cooldown(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool(Config{MaxFailures: 2, Cooldown: time.Minute})
	p.now = func() time.Time { return now }
	if err := p.Add("http://a", "http://b"); err != nil {
		t.Fatal(err)
	}

	a, _ := p.Next()
	if p.MarkFailure(a) {
		t.Fatal("benched after one failure")
	}
	if !p.MarkFailure(a) {
		t.Fatal("not benched after MaxFailures")
	}

	for i := 0; i < 3; i++ {
		if got := mustNext(t, p); got != "http://b" {
			t.Fatalf("Next = %s while a cools down", got)
		}
	}

	b, _ := url.Parse("http://b")
	p.MarkFailure(b)
	p.MarkFailure(b)
	if _, err := p.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}

	now = now.Add(time.Minute + time.Second)
	if got := mustNext(t, p); got != "http://a" {
		t.Errorf("Next after cooldown = %s, want http://a", got)
	}
	if st := p.Stats(); st[0].Failures != 0 || st[0].Disabled {
		t.Errorf("revived proxy stats = %+v", st[0])
	}
}

func TestPool_SuccessForgivesFailure(t *testing.T) {
	p := NewPool(Config{MaxFailures: 2})
	_ = p.Add("http://a")
	a, _ := p.Next()

	p.MarkFailure(a)
	p.MarkSuccess(a)
	if p.MarkFailure(a) {
		t.Error("benched although a success forgave the first failure")
	}

	st := p.Stats()
	if st[0].Successes != 1 || st[0].Failures != 1 {
		t.Errorf("stats = %+v", st[0])
	}
}

func TestPool_UnknownURL(t *testing.T) {
	p := NewPool(Config{})
	_ = p.Add("http://a")
	other, _ := url.Parse("http://other")
	p.MarkSuccess(other)
	if p.MarkFailure(other) || p.MarkFailure(nil) {
		t.Error("unknown proxy reported as benched")
	}
}

func TestPool_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "# residential\nhttp://proxy1.local:8080\n\n  proxy2.local:3128  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewPool(Config{})
	if err := p.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len = %d, want 2", p.Len())
	}
	if got := mustNext(t, p); got != "http://proxy1.local:8080" {
		t.Errorf("first = %s", got)
	}
	if got := mustNext(t, p); got != "http://proxy2.local:3128" {
		t.Errorf("second = %s", got)
	}

	if err := p.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	if u, err := FromRequest(req); u != nil || err != nil {
		t.Errorf("direct request = %v, %v", u, err)
	}

	proxyURL, _ := url.Parse("http://user:pw@proxy.local:8080")
	req = req.WithContext(WithURL(req.Context(), proxyURL))
	u, err := FromRequest(req)
	if err != nil || u != proxyURL {
		t.Errorf("FromRequest = %v, %v", u, err)
	}
}
