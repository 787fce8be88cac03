package anomaly

import (
	"strings"

	"github.com/mssola/useragent"
)

// automationSignatures are lowercase substrings of HTTP libraries and
// headless browsers that useragent.Bot does not report.
var automationSignatures = []string{
	"curl/",
	"wget/",
	"python-requests",
	"python-urllib",
	"aiohttp",
	"go-http-client",
	"scrapy",
	"headless",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"okhttp",
	"axios/",
	"node-fetch",
	"libwww-perl",
	"java/",
	"httpclient",
	"httpie",
}

// Client is what the detector learns from a User-Agent header.
type Client struct {
	Automation bool
	// Name is a display name such as "Chrome on Linux" or "curl/8.4.0".
	Name string
}

// ClassifyUserAgent reports whether raw looks like an automated client. An
// empty User-Agent is treated as automation.
func ClassifyUserAgent(raw string) Client {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Client{Automation: true, Name: "empty"}
	}

	lower := strings.ToLower(raw)
	for _, sig := range automationSignatures {
		if strings.Contains(lower, sig) {
			return Client{Automation: true, Name: productToken(raw)}
		}
	}

	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		if name == "" {
			name = productToken(raw)
		}
		return Client{Automation: true, Name: name}
	}
	return Client{Name: displayName(ua)}
}

func displayName(ua *useragent.UserAgent) string {
	browser, _ := ua.Browser()
	os := ua.OS()
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}

// productToken returns the first product/version token, e.g. "curl/8.4.0".
func productToken(raw string) string {
	token, _, _ := strings.Cut(raw, " ")
	if len(token) > 64 {
		token = token[:64]
	}
	return token
}
