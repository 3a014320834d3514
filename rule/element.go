package rule

import (
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/net/html"

	"github.com/windvane/booksource/errs"
)

type elementKind int

const (
	textElement elementKind = iota
	nodeElement
	jsonElement
)

// Element is one extraction result: an HTML node, a decoded JSON value, or
// plain text. The backing representations are materialized lazily, so a
// JSON rule can run against text captured by a CSS rule and the other way
// round. Materializations are memoized per element; an Element is not safe
// for concurrent use.
type Element struct {
	kind elementKind
	text string
	node *html.Node
	json any

	nodeReady bool
	jsonReady bool
}

// FromText wraps raw text, typically a fetched response body. Whether it is
// parsed as HTML or JSON is decided by the first rule that touches it.
func FromText(s string) *Element {
	return &Element{kind: textElement, text: s}
}

func FromNode(n *html.Node) *Element {
	return &Element{kind: nodeElement, node: n, nodeReady: true}
}

func FromJSON(v any) *Element {
	return &Element{kind: jsonElement, json: v, jsonReady: true}
}

// Text returns the element's textual content: concatenated text for HTML
// nodes, the scalar or encoded form for JSON values, the string itself for
// text.
func (e *Element) Text() string {
	if e == nil {
		return ""
	}
	switch e.kind {
	case nodeElement:
		return htmlquery.InnerText(e.node)
	case jsonElement:
		return jsonString(e.json)
	default:
		return e.text
	}
}

// HTML returns the markup form: rendered outer HTML for nodes, the raw
// string for text, the JSON encoding for JSON values.
func (e *Element) HTML() string {
	if e == nil {
		return ""
	}
	switch e.kind {
	case nodeElement:
		return renderNode(e.node)
	case jsonElement:
		return jsonString(e.json)
	default:
		return e.text
	}
}

func (e *Element) materializeNode() (*html.Node, error) {
	if e == nil {
		return nil, errs.Extractionf("no input element")
	}
	if e.nodeReady {
		return e.node, nil
	}
	n, err := html.Parse(strings.NewReader(e.Text()))
	if err != nil {
		return nil, errs.ExtractionWrap(err, "parse html")
	}
	e.node = n
	e.nodeReady = true
	return n, nil
}

func (e *Element) materializeJSON() (any, error) {
	if e == nil {
		return nil, errs.Extractionf("no input element")
	}
	if e.jsonReady {
		return e.json, nil
	}
	v, err := oj.ParseString(e.Text())
	if err != nil {
		return nil, errs.ExtractionWrap(err, "parse json")
	}
	e.json = v
	e.jsonReady = true
	return v, nil
}

// jsonString renders a decoded JSON value the way it would read in the
// document: scalars bare, with integral floats printed without a decimal
// point, and composites re-encoded.
func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return oj.JSON(v)
	}
}

func renderNode(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

func innerHTML(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return b.String()
		}
	}
	return b.String()
}
