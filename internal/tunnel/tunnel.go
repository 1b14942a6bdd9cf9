// Package tunnel recognises responses produced by reverse-tunnel services
// (localtunnel, ngrok, Cloudflare Tunnel) sitting between the client and
// the backend. When a tunnel is down or shows its interstitial page it
// answers with HTML instead of the backend's JSON; nothing at the protocol
// level distinguishes that from a real response, so detection is by
// marker strings.
package tunnel

import (
	"net/http"
	"net/url"
	"strings"
)

// Provider identifies a tunnel service.
type Provider string

const (
	ProviderNone        Provider = ""
	ProviderLocaltunnel Provider = "localtunnel"
	ProviderNgrok       Provider = "ngrok"
	ProviderCloudflare  Provider = "cloudflare"
)

// hostSuffixes maps public tunnel domains to their provider.
var hostSuffixes = []struct {
	suffix   string
	provider Provider
}{
	{".loca.lt", ProviderLocaltunnel},
	{".localtunnel.me", ProviderLocaltunnel},
	{".ngrok-free.app", ProviderNgrok},
	{".ngrok-free.dev", ProviderNgrok},
	{".ngrok.app", ProviderNgrok},
	{".ngrok.io", ProviderNgrok},
	{".trycloudflare.com", ProviderCloudflare},
}

// ProviderForURL reports which tunnel service, if any, serves baseURL.
func ProviderForURL(baseURL string) Provider {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ProviderNone
	}
	host := "." + strings.ToLower(u.Hostname())
	for _, h := range hostSuffixes {
		if strings.HasSuffix(host, h.suffix) {
			return h.provider
		}
	}
	return ProviderNone
}

// BypassHeaders returns the headers that skip a provider's browser
// interstitial. Cloudflare has none.
func BypassHeaders(p Provider, userAgent string) http.Header {
	h := http.Header{}
	switch p {
	case ProviderLocaltunnel:
		h.Set("Bypass-Tunnel-Reminder", "true")
		// localtunnel only shows the reminder to browser user agents.
		h.Set("User-Agent", userAgent)
	case ProviderNgrok:
		h.Set("Ngrok-Skip-Browser-Warning", "true")
	}
	return h
}
