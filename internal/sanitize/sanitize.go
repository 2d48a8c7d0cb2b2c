// Package sanitize reduces notification markup to a small allow-listed subset.
package sanitize

import (
	"html"
	"strings"
	"unicode/utf8"

	xhtml "golang.org/x/net/html"
)

const (
	maxDecodeRounds   = 16
	maxSanitizeRounds = 8
)

// allowed tags and whether they take a closing tag.
var allowed = map[string]bool{
	"b":  true,
	"i":  true,
	"u":  true,
	"a":  true,
	"p":  true,
	"br": false,
}

// dropped with their content.
var dropSubtree = map[string]bool{
	"script":    true,
	"style":     true,
	"iframe":    true,
	"object":    true,
	"embed":     true,
	"noscript":  true,
	"noembed":   true,
	"noframes":  true,
	"template":  true,
	"title":     true,
	"textarea":  true,
	"xmp":       true,
	"svg":       true,
	"math":      true,
	"head":      true,
	"plaintext": true,
}

var safeSchemes = []string{"http://", "https://", "mailto:"}

// Sanitize returns markup containing only b, i, u, p, br and a href with an
// http, https or mailto target. All other tags are removed. Text is escaped.
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	for range maxSanitizeRounds {
		next := sanitizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
	return plainFallback(s)
}

// Strip returns the text content of markup with every tag removed.
func Strip(s string) string {
	var b strings.Builder
	walk(decodeEntities(s), func(z *xhtml.Tokenizer, tt xhtml.TokenType, name string) {
		switch tt {
		case xhtml.TextToken:
			b.Write(z.Text())
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			if name == "br" {
				b.WriteByte('\n')
			}
		case xhtml.EndTagToken:
			if name == "p" {
				b.WriteByte('\n')
			}
		}
	})
	return strings.TrimSpace(b.String())
}

// HasRichContent reports whether s contains any allow-listed tag.
func HasRichContent(s string) bool {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return false
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, ok := allowed[string(name)]; ok {
				return true
			}
		}
	}
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sanitizeOnce(s string) string {
	var (
		out  strings.Builder
		open []string
	)
	walk(decodeEntities(s), func(z *xhtml.Tokenizer, tt xhtml.TokenType, name string) {
		switch tt {
		case xhtml.TextToken:
			out.WriteString(escapeText(string(z.Text())))
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			closes, ok := allowed[name]
			if !ok {
				return
			}
			if name == "a" {
				out.WriteString(anchorTag(z))
			} else {
				out.WriteString("<" + name + ">")
			}
			if closes && tt == xhtml.StartTagToken {
				open = append(open, name)
			} else if closes {
				out.WriteString("</" + name + ">")
			}
		case xhtml.EndTagToken:
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] != name {
					continue
				}
				for j := len(open) - 1; j >= i; j-- {
					out.WriteString("</" + open[j] + ">")
				}
				open = open[:i]
				break
			}
		}
	})
	for i := len(open) - 1; i >= 0; i-- {
		out.WriteString("</" + open[i] + ">")
	}
	return out.String()
}

// walk tokenizes s and calls fn for every token outside dropped subtrees.
// Comments and doctypes are never passed to fn.
func walk(s string, fn func(z *xhtml.Tokenizer, tt xhtml.TokenType, name string)) {
	z := xhtml.NewTokenizer(strings.NewReader(s))
	skip, depth := "", 0
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return
		}
		var name string
		if tt == xhtml.StartTagToken || tt == xhtml.EndTagToken || tt == xhtml.SelfClosingTagToken {
			n, _ := z.TagName()
			name = string(n)
		}
		if depth > 0 {
			switch {
			case tt == xhtml.StartTagToken && name == skip:
				depth++
			case tt == xhtml.EndTagToken && name == skip:
				depth--
			}
			continue
		}
		switch tt {
		case xhtml.CommentToken, xhtml.DoctypeToken:
			continue
		case xhtml.StartTagToken:
			if dropSubtree[name] {
				skip, depth = name, 1
				continue
			}
		case xhtml.SelfClosingTagToken, xhtml.EndTagToken:
			if dropSubtree[name] {
				continue
			}
		}
		fn(z, tt, name)
	}
}

// decodeEntities unescapes s until it stops changing. Input that is still
// changing after maxDecodeRounds loses its ampersands.
func decodeEntities(s string) string {
	for range maxDecodeRounds {
		next := html.UnescapeString(s)
		if next == s {
			return s
		}
		s = next
	}
	return strings.ReplaceAll(s, "&", "")
}

func anchorTag(z *xhtml.Tokenizer) string {
	href := ""
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			href = safeHref(string(val))
		}
		if !more {
			break
		}
	}
	if href == "" {
		return "<a>"
	}
	return `<a href="` + html.EscapeString(href) + `">`
}

// safeHref returns the normalized href or "" when its scheme is not allowed.
func safeHref(v string) string {
	v = strings.Map(func(r rune) rune {
		if r <= 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, v)
	lower := strings.ToLower(v)
	ok := false
	for _, scheme := range safeSchemes {
		if strings.HasPrefix(lower, scheme) {
			ok = true
			break
		}
	}
	if !ok {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '"', '\'', '<', '>', '`':
			b.WriteString("%" + strings.ToUpper(hexByte(c)))
		default:
			b.WriteByte(c)
		}
	}
	return neutralize(b.String(), "%3A")
}

func hexByte(c byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[c>>4], digits[c&0xf]})
}

func escapeText(s string) string {
	return html.EscapeString(neutralize(s, "："))
}

var dangerousSchemes = []string{"javascript:", "vbscript:", "data:"}

// neutralize replaces the colon of every dangerous scheme in s, matching
// ASCII case-insensitively.
func neutralize(s, colon string) string {
	for _, scheme := range dangerousSchemes {
		s = replaceFold(s, scheme, scheme[:len(scheme)-1], colon)
	}
	return s
}

func replaceFold(s, pattern, keep, colon string) string {
	var b strings.Builder
	last := 0
	for i := 0; i+len(pattern) <= len(s); {
		if !equalFoldASCII(s[i:i+len(pattern)], pattern) {
			i++
			continue
		}
		b.WriteString(s[last:i])
		b.WriteString(s[i : i+len(keep)])
		b.WriteString(colon)
		i += len(pattern)
		last = i
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

func equalFoldASCII(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// plainFallback drops every markup character so the result is stable under
// another pass.
func plainFallback(s string) string {
	text := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '&':
			return -1
		}
		return r
	}, Strip(s))
	return escapeText(text)
}
