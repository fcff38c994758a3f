package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/lidco/lidco/pkg/config"
)

const (
	fetchTimeout       = 15 * time.Second
	defaultFetchMaxLen = 5000
	maxFetchBodyBytes  = 5 << 20
	fetchUserAgent     = "lidco/1.0 (+https://github.com/lidco/lidco)"
)

var (
	reScript     = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle      = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTag        = regexp.MustCompile(`<[^>]+>`)
	reBlankSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

type WebFetchTool struct {
	client *http.Client
	guard  *NetGuard
}

// NewWebFetchTool builds the fetch tool. Internal addresses are refused
// unless their host is in allowedHosts.
func NewWebFetchTool(allowedHosts ...string) *WebFetchTool {
	guard := NewNetGuard(allowedHosts...)
	return &WebFetchTool{
		guard: guard,
		client: &http.Client{
			Timeout:   fetchTimeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment, DialContext: guard.DialContext},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
	}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch a URL and return its readable text." }

func (t *WebFetchTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "url", Type: "string", Description: "The URL to fetch.", Required: true},
		{Name: "max_length", Type: "integer", Description: "Maximum length of returned text in characters.", Default: defaultFetchMaxLen},
	}
}

func (t *WebFetchTool) Permission() config.PermissionLevel { return config.PermissionAsk }

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) Outcome {
	raw, ok := stringArg(args, "url")
	if !ok || raw == "" {
		return Done(Fail("url is required"))
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return Done(Fail("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Done(Fail("only http/https URLs are allowed"))
	}
	if parsed.Host == "" {
		return Done(Fail("missing domain in URL"))
	}
	if err := t.guard.CheckHost(parsed.Hostname()); err != nil {
		return Done(Fail("Fetch blocked: %v", err))
	}
	maxLen := intArg(args, "max_length", defaultFetchMaxLen)
	if maxLen <= 0 {
		maxLen = defaultFetchMaxLen
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return Done(Fail("Fetch failed: %v", err))
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		var blocked *BlockedAddressError
		if errors.As(err, &blocked) {
			return Done(Fail("Fetch blocked: %v", blocked))
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Done(Fail("Request timed out after %d seconds: %s", int(fetchTimeout.Seconds()), raw))
		}
		return Done(Fail("Fetch failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Done(Fail("Fetch failed: HTTP %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return Done(Fail("Fetch failed: %v", err))
	}

	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	switch {
	case strings.Contains(contentType, "application/json"):
		var v any
		if json.Unmarshal(body, &v) == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				text = string(pretty)
			}
		}
	case strings.Contains(contentType, "html") || strings.HasPrefix(strings.TrimSpace(text), "<"):
		text = extractText(text)
	}

	if runes := []rune(text); len(runes) > maxLen {
		text = string(runes[:maxLen]) + "\n\n[Truncated]"
	}
	return Done(OK(text).WithMeta("url", raw).WithMeta("length", len(text)))
}

func extractText(html string) string {
	s := reScript.ReplaceAllLiteralString(html, "")
	s = reStyle.ReplaceAllLiteralString(s, "")
	s = reTag.ReplaceAllLiteralString(s, "\n")
	s = reBlankSpace.ReplaceAllLiteralString(s, " ")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return reBlankLines.ReplaceAllLiteralString(strings.Join(lines, "\n"), "\n\n")
}
