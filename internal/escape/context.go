// Package escape tracks the HTML context of every position in a tag body
// so each interpolation is written with the escaping its context needs.
package escape

import (
	"strings"

	"golang.org/x/net/html/atom"
)

// Context is the HTML context at a point in the output.
type Context int

const (
	ContextText Context = iota
	ContextTag
	ContextAttrName
	ContextAfterAttrName
	ContextBeforeValue
	ContextQuotedAttr
	ContextUnquotedAttr
	ContextRawText
	ContextComment
)

// String returns the string representation of the context
func (c Context) String() string {
	switch c {
	case ContextText:
		return "text"
	case ContextTag:
		return "tag"
	case ContextAttrName:
		return "attribute name"
	case ContextAfterAttrName:
		return "after attribute name"
	case ContextBeforeValue:
		return "before attribute value"
	case ContextQuotedAttr:
		return "quoted attribute"
	case ContextUnquotedAttr:
		return "unquoted attribute"
	case ContextRawText:
		return "raw text"
	case ContextComment:
		return "comment"
	default:
		return "unknown"
	}
}

// State is the full scanner state between two nodes. States are
// comparable so branch results can be checked for agreement.
type State struct {
	Context Context
	// Elem is the lower-case name of the element whose tag is open, or of
	// the raw-text element being scanned.
	Elem string
	// Attr is the lower-case name of the attribute being scanned.
	Attr  string
	Delim byte
	// closing is set while scanning an end tag.
	closing bool
}

// URL reports whether the attribute being scanned holds a URL.
func (s State) URL() bool {
	return containsURL(s.Elem, s.Attr)
}

// Advance returns the state after text is emitted in state s.
func Advance(s State, text string) State {
	for i := 0; i < len(text); {
		c := text[i]
		switch s.Context {
		case ContextText:
			switch {
			case strings.HasPrefix(text[i:], "<!--"):
				s = State{Context: ContextComment}
				i += 4
				continue
			case c == '<' && i+1 < len(text) && text[i+1] == '/' && i+2 < len(text) && isLetter(text[i+2]):
				n := nameEnd(text, i+2)
				s = State{Context: ContextTag, Elem: strings.ToLower(text[i+2 : n]), closing: true}
				i = n
				continue
			case c == '<' && i+1 < len(text) && isLetter(text[i+1]):
				n := nameEnd(text, i+1)
				s = State{Context: ContextTag, Elem: strings.ToLower(text[i+1 : n])}
				i = n
				continue
			}
		case ContextComment:
			if strings.HasPrefix(text[i:], "-->") {
				s = State{Context: ContextText}
				i += 3
				continue
			}
		case ContextRawText:
			if c == '<' && len(text)-i >= len(s.Elem)+2 && strings.EqualFold(text[i+2:i+2+len(s.Elem)], s.Elem) && text[i+1] == '/' {
				i += 2 + len(s.Elem)
				s = State{Context: ContextTag, Elem: s.Elem, closing: true}
				continue
			}
		case ContextTag, ContextAfterAttrName:
			switch {
			case c == '>':
				s = s.endTag()
			case isSpace(c) || c == '/':
			case c == '=' && s.Context == ContextAfterAttrName:
				s.Context = ContextBeforeValue
			default:
				n := attrEnd(text, i)
				if n == i {
					n++
				}
				s.Context, s.Attr = ContextAttrName, strings.ToLower(text[i:n])
				i = n
				continue
			}
		case ContextAttrName:
			switch {
			case c == '=':
				s.Context = ContextBeforeValue
			case c == '>':
				s = s.endTag()
			case isSpace(c):
				s.Context = ContextAfterAttrName
			default:
				// An attribute name split by an interpolation keeps
				// growing.
				s.Attr += strings.ToLower(string(c))
			}
		case ContextBeforeValue:
			switch {
			case isSpace(c):
			case c == '"' || c == '\'':
				s.Context, s.Delim = ContextQuotedAttr, c
			case c == '>':
				s = s.endTag()
			default:
				s.Context = ContextUnquotedAttr
				continue
			}
		case ContextQuotedAttr:
			if c == s.Delim {
				s.Context, s.Attr, s.Delim = ContextTag, "", 0
			}
		case ContextUnquotedAttr:
			switch {
			case isSpace(c):
				s.Context, s.Attr = ContextTag, ""
			case c == '>':
				s = s.endTag()
			}
		}
		i++
	}
	return s
}

// endTag returns the state after the '>' of the tag s is scanning.
func (s State) endTag() State {
	if !s.closing {
		switch atom.Lookup([]byte(s.Elem)) {
		case atom.Script, atom.Style:
			return State{Context: ContextRawText, Elem: s.Elem}
		}
	}
	return State{Context: ContextText}
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func nameEnd(text string, i int) int {
	for i < len(text) && !isSpace(text[i]) && text[i] != '>' && text[i] != '/' {
		i++
	}
	return i
}

func attrEnd(text string, i int) int {
	for i < len(text) && !isSpace(text[i]) && text[i] != '>' && text[i] != '=' && text[i] != '/' {
		i++
	}
	return i
}

// containsURL reports whether attribute attr of element elem holds a URL.
// Names in a namespace other than xmlns are treated as unprefixed; data-
// attributes hold a URL when their name mentions one.
func containsURL(elem, attr string) bool {
	if p := strings.IndexByte(attr, ':'); p != -1 {
		if attr[:p] == "xmlns" {
			return true
		}
		attr = attr[p+1:]
	} else if rest, ok := strings.CutPrefix(attr, "data-"); ok {
		return strings.Contains(rest, "src") || strings.Contains(rest, "url") || strings.Contains(rest, "uri")
	}

	e := atom.Lookup([]byte(elem))
	switch atom.Lookup([]byte(attr)) {
	case atom.Href:
		return e == atom.A || e == atom.Area || e == atom.Link || e == atom.Base
	case atom.Src:
		switch e {
		case atom.Audio, atom.Embed, atom.Iframe, atom.Img, atom.Input, atom.Script, atom.Source, atom.Track, atom.Video:
			return true
		}
	case atom.Srcset:
		return e == atom.Img || e == atom.Source
	case atom.Action:
		return e == atom.Form
	case atom.Formaction:
		return e == atom.Button || e == atom.Input
	case atom.Cite:
		return e == atom.Blockquote || e == atom.Del || e == atom.Ins || e == atom.Q
	case atom.Data:
		return e == atom.Object
	case atom.Poster:
		return e == atom.Video
	case atom.Manifest:
		return e == atom.Html
	case atom.Icon, atom.Ping, atom.Usemap:
		return true
	}
	return attr == "xmlns"
}
