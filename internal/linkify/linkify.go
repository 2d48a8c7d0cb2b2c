// Package linkify finds http and https links in sanitized notification bodies.
package linkify

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"mvdan.cc/xurls/v2"

	"github.com/llehouerou/notifyd/internal/notify"
)

var strict = xurls.Strict()

// escaped forms that terminate a URL found in text.
var terminators = []string{"&lt;", "&gt;", "&#34;", "&#39;", "&quot;"}

// Detect returns the links in body, a string produced by sanitize.Sanitize.
// Offsets index into body itself. Anchor targets span the anchor text; bare
// URLs are only searched for outside anchors.
func Detect(body string) []notify.Link {
	var (
		links       []notify.Link
		offset      int
		anchorHref  string
		anchorStart = -1
	)
	z := xhtml.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return links
		}
		raw := z.Raw()
		start := offset
		offset += len(raw)

		switch tt {
		case xhtml.TextToken:
			if anchorStart >= 0 {
				continue
			}
			links = append(links, scanText(string(raw), start)...)
		case xhtml.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			anchorHref, anchorStart = "", offset
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					anchorHref = string(val)
				}
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			if string(name) != "a" || anchorStart < 0 {
				continue
			}
			if isWeb(anchorHref) && start > anchorStart {
				links = append(links, notify.Link{URL: anchorHref, Start: anchorStart, End: start})
			}
			anchorHref, anchorStart = "", -1
		}
	}
}

func scanText(raw string, base int) []notify.Link {
	var links []notify.Link
	for _, m := range strict.FindAllStringIndex(raw, -1) {
		s, e := m[0], m[1]
		for _, t := range terminators {
			if i := strings.Index(raw[s:], t); i >= 0 && s+i < e {
				e = s + i
			}
		}
		url := html.UnescapeString(raw[s:e])
		if !isWeb(url) {
			continue
		}
		links = append(links, notify.Link{URL: url, Start: base + s, End: base + e})
	}
	return links
}

func isWeb(url string) bool {
	lower := strings.ToLower(url)
	return (strings.HasPrefix(lower, "http://") && len(lower) > len("http://")) ||
		(strings.HasPrefix(lower, "https://") && len(lower) > len("https://"))
}
