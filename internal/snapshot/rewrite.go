// Package snapshot turns captured documents into static files under the
// output root, rewriting root-relative asset references so nested routes
// resolve them from any static host.
package snapshot

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// RewriteRootRelative prefixes every root-relative href, src and srcset value
// in doc with depth repetitions of "../". Only attribute values inside start
// tags change; text, comments, and script or style bodies are copied as-is.
// Markup inside noscript is rewritten like the rest of the document.
func RewriteRootRelative(doc string, depth int) string {
	if depth <= 0 {
		return doc
	}
	prefix := []byte(strings.Repeat("../", depth))

	var out bytes.Buffer
	out.Grow(len(doc) + len(doc)/16)
	z := html.NewTokenizer(strings.NewReader(doc))
	inNoscript := false
	for {
		tt := z.Next()
		raw := z.Raw()
		switch tt {
		case html.ErrorToken:
			out.Write(raw)
			if z.Err() == io.EOF {
				return out.String()
			}
			// The reader is an in-memory string; any other tokenizer error
			// leaves the remainder unparsed, so keep the input untouched.
			return doc
		case html.StartTagToken:
			out.Write(rewriteTag(raw, prefix))
			// TagName lowercases the buffer in place, so it runs after the write.
			name, _ := z.TagName()
			inNoscript = string(name) == "noscript"
			continue
		case html.SelfClosingTagToken:
			out.Write(rewriteTag(raw, prefix))
		case html.TextToken:
			if inNoscript {
				// The tokenizer hands noscript content over as raw text, but
				// clients without scripting parse it as markup.
				out.WriteString(RewriteRootRelative(string(raw), depth))
			} else {
				out.Write(raw)
			}
		default:
			out.Write(raw)
		}
		inNoscript = false
	}
}

type attrKind int

const (
	attrOther attrKind = iota
	attrURL
	attrSrcset
)

// classify matches href and src style attributes, including namespaced or
// data- variants such as xlink:href and data-src used by lazy loaders.
func classify(name []byte) attrKind {
	n := strings.ToLower(string(name))
	switch {
	case hasAttrSuffix(n, "srcset"):
		return attrSrcset
	case hasAttrSuffix(n, "href"), hasAttrSuffix(n, "src"):
		return attrURL
	}
	return attrOther
}

func hasAttrSuffix(name, suffix string) bool {
	if name == suffix {
		return true
	}
	if !strings.HasSuffix(name, suffix) {
		return false
	}
	sep := name[len(name)-len(suffix)-1]
	return sep == '-' || sep == ':'
}

// rewriteTag scans the raw bytes of one start tag and rewrites the values of
// matching attributes. Bytes outside those values are copied unchanged.
func rewriteTag(raw, prefix []byte) []byte {
	var (
		out     []byte
		flushed int
		n       = len(raw)
		i       = 1
	)
	// tag name
	for i < n && !isSpace(raw[i]) && raw[i] != '>' && raw[i] != '/' {
		i++
	}
	for i < n {
		for i < n && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			break
		}
		nameStart := i
		if raw[i] == '=' {
			i++
		}
		for i < n && !isSpace(raw[i]) && raw[i] != '=' && raw[i] != '>' && raw[i] != '/' {
			i++
		}
		kind := classify(raw[nameStart:i])
		for i < n && isSpace(raw[i]) {
			i++
		}
		if i >= n || raw[i] != '=' {
			continue
		}
		i++
		for i < n && isSpace(raw[i]) {
			i++
		}
		var valStart, valEnd int
		if i < n && (raw[i] == '"' || raw[i] == '\'') {
			quote := raw[i]
			valStart = i + 1
			valEnd = valStart
			for valEnd < n && raw[valEnd] != quote {
				valEnd++
			}
			i = valEnd + 1
		} else {
			valStart = i
			for i < n && !isSpace(raw[i]) && raw[i] != '>' {
				i++
			}
			valEnd = i
		}
		if kind == attrOther || valStart >= valEnd {
			continue
		}
		var value []byte
		if kind == attrSrcset {
			value = rewriteSrcset(raw[valStart:valEnd], prefix)
		} else {
			value = rewriteURL(raw[valStart:valEnd], prefix)
		}
		if value == nil {
			continue
		}
		if out == nil {
			out = make([]byte, 0, n+len(prefix)*2)
		}
		out = append(out, raw[flushed:valStart]...)
		out = append(out, value...)
		flushed = valEnd
	}
	if out == nil {
		return raw
	}
	return append(out, raw[flushed:]...)
}

// rewriteURL returns the prefixed value, or nil when v is not root-relative.
// Protocol-relative values ("//host/x") are left alone.
func rewriteURL(v, prefix []byte) []byte {
	if !isRootRelative(v) {
		return nil
	}
	out := make([]byte, 0, len(v)+len(prefix)-1)
	out = append(out, prefix...)
	return append(out, v[1:]...)
}

// rewriteSrcset rewrites each comma separated candidate of a srcset value.
func rewriteSrcset(v, prefix []byte) []byte {
	var (
		out     []byte
		changed bool
		atStart = true
		flushed int
	)
	for j := 0; j < len(v); j++ {
		c := v[j]
		if atStart {
			if isSpace(c) {
				continue
			}
			atStart = false
			if isRootRelative(v[j:]) {
				out = append(out, v[flushed:j]...)
				out = append(out, prefix...)
				flushed = j + 1
				changed = true
			}
		}
		if c == ',' {
			atStart = true
		}
	}
	if !changed {
		return nil
	}
	return append(out, v[flushed:]...)
}

func isRootRelative(v []byte) bool {
	return len(v) > 0 && v[0] == '/' && (len(v) == 1 || v[1] != '/')
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
