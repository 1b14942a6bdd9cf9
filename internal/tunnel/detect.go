package tunnel

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Marker is a substring that identifies a tunnel-generated page.
type Marker struct {
	Text     string
	Provider Provider
}

// Markers is the documented list of known tunnel/proxy error signatures.
// Matching is case-insensitive. Order matters only for reporting: the first
// match names the provider.
var Markers = []Marker{
	{"Tunnel website ahead!", ProviderLocaltunnel},
	{"localtunnel", ProviderLocaltunnel},
	{"ERR_NGROK", ProviderNgrok},
	{"ngrok-skip-browser-warning", ProviderNgrok},
	{"You are about to visit", ProviderNgrok},
	{"Cloudflare Tunnel error", ProviderCloudflare},
	{"cf-error-details", ProviderCloudflare},
	{"Argo Tunnel error", ProviderCloudflare},
}

// sniffLen bounds how much of the body is inspected for an HTML prologue.
const sniffLen = 512

// Diagnosis describes why a body was judged to be a tunnel/proxy page.
type Diagnosis struct {
	// Provider is empty when the body is generic HTML with no known marker.
	Provider Provider
	// Marker is the matched signature, if any.
	Marker string
	// Title is the page <title>, when one could be extracted.
	Title string
}

// Detect inspects a raw response body. Known tunnel markers take
// precedence over the generic HTML check; a nil result means the body does
// not look like a tunnel or proxy page.
func Detect(body []byte) *Diagnosis {
	lower := bytes.ToLower(body)
	for _, m := range Markers {
		if bytes.Contains(lower, bytes.ToLower([]byte(m.Text))) {
			return &Diagnosis{Provider: m.Provider, Marker: m.Text, Title: Title(body)}
		}
	}
	if LooksLikeHTML(body) {
		return &Diagnosis{Title: Title(body)}
	}
	return nil
}

// LooksLikeHTML reports whether body starts like an HTML document.
func LooksLikeHTML(body []byte) bool {
	head := body
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.HasPrefix(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<head>")) ||
		bytes.Contains(head, []byte("<body"))
}

// Title extracts the text of the first <title> element, or "".
func Title(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way there is no title.
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) != "title" {
				continue
			}
			if z.Next() == html.TextToken {
				return strings.Join(strings.Fields(string(z.Text())), " ")
			}
			return ""
		}
	}
}

// Message renders a human-readable diagnostic telling the user to check
// that the backend is reachable through its tunnel.
func (d *Diagnosis) Message(baseURL string) string {
	var b strings.Builder
	switch d.Provider {
	case ProviderNone:
		b.WriteString("the server answered with an HTML page instead of JSON")
	default:
		fmt.Fprintf(&b, "the %s tunnel intercepted the request", d.Provider)
	}
	if d.Title != "" {
		fmt.Fprintf(&b, " (%q)", d.Title)
	}
	fmt.Fprintf(&b, "; verify the backend is running and reachable at %s", baseURL)
	if d.Provider == ProviderLocaltunnel && ProviderForURL(baseURL) == ProviderLocaltunnel {
		fmt.Fprintf(&b, ", and open %s in a browser once to accept the tunnel reminder", baseURL)
	}
	return b.String()
}
