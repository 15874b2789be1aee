package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// ParseProfile converts a config value to a Profile. Empty means ProfileGo.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return ProfileGo, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom:
		return p, nil
	}
	return "", fmt.Errorf("unknown fingerprint profile %q", s)
}

// Options tweaks the TLS setup of a Transport.
type Options struct {
	// InsecureSkipVerify disables certificate verification. Tests only.
	InsecureSkipVerify bool
	// Proxy selects a forward proxy per request; nil keeps the environment
	// proxy settings. Tunnelled HTTPS uses the standard TLS stack after
	// CONNECT, so the ClientHello profile applies to direct connections only.
	Proxy func(*http.Request) (*url.URL, error)
}

// Transport returns an http.RoundTripper presenting the TLS ClientHello of
// profile p. ProfileGo yields a plain clone of http.DefaultTransport. Browser
// profiles advertise only http/1.1 in ALPN since the returned transport does
// not speak HTTP/2 over custom TLS connections.
func Transport(p Profile, opts Options) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig.InsecureSkipVerify = true
		}
		return transport, nil
	}

	var clientHelloID utls.ClientHelloID
	switch p {
	case ProfileChrome:
		clientHelloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		clientHelloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		clientHelloID = utls.HelloIOS_Auto
	case ProfileRandom:
		clientHelloID = utls.HelloRandomizedNoALPN
	default:
		return nil, fmt.Errorf("unknown fingerprint profile %q", p)
	}

	transport.ForceAttemptHTTP2 = false
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newUConn(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}, clientHelloID)
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake with %s failed: %w", host, err)
		}
		return uConn, nil
	}

	return transport, nil
}

// newUConn builds a uTLS client from the ClientHelloSpec of id with ALPN
// pinned to http/1.1. The hello is rebuilt per connection because extensions
// carry handshake state, and randomized ids yield a fresh hello each time.
func newUConn(conn net.Conn, cfg *utls.Config, id utls.ClientHelloID) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, fmt.Errorf("build client hello for %s: %w", id.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	if id == utls.HelloRandomizedNoALPN {
		pruneCurves(&spec)
	}

	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("apply client hello for %s: %w", id.Str(), err)
	}
	return uConn, nil
}

// pruneCurves drops advertised groups the client cannot answer a
// HelloRetryRequest for: anything without a key share that is not one of
// the plain ECDHE curves. GREASE values are kept.
func pruneCurves(spec *utls.ClientHelloSpec) {
	shared := map[utls.CurveID]bool{}
	for _, ext := range spec.Extensions {
		if ks, ok := ext.(*utls.KeyShareExtension); ok {
			for _, share := range ks.KeyShares {
				shared[share.Group] = true
			}
		}
	}
	for _, ext := range spec.Extensions {
		sc, ok := ext.(*utls.SupportedCurvesExtension)
		if !ok {
			continue
		}
		sc.Curves = slices.DeleteFunc(sc.Curves, func(c utls.CurveID) bool {
			switch c {
			case utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521:
				return false
			}
			return !shared[c] && !isGREASE(uint16(c))
		})
	}
}

func isGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a && v>>8 == v&0xff
}
