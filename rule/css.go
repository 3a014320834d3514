package rule

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Named extractors of the CSS dialect. Any other tail segment reads the
// attribute of that name, so href, src and friends are listed only to make
// the single-segment case (extractor applied to the current element)
// unambiguous.
var cssExtractors = map[string]struct{}{
	"text":      {},
	"textNodes": {},
	"ownText":   {},
	"html":      {},
	"outerHtml": {},
	"all":       {},
	"href":      {},
	"src":       {},
	"content":   {},
	"value":     {},
	"alt":       {},
	"title":     {},
}

func isExtractorName(s string) bool {
	if _, ok := cssExtractors[s]; ok {
		return true
	}
	return strings.HasPrefix(s, "data-")
}

// splitExtractor separates selector steps from the extractor for string
// extraction. With several segments the tail is always the extractor; a
// lone segment is an extractor only when it names one, otherwise it is a
// selector with the default text extractor.
func splitExtractor(steps []string) ([]string, string) {
	switch len(steps) {
	case 0:
		return nil, "text"
	case 1:
		if isExtractorName(steps[0]) {
			return nil, steps[0]
		}
		return steps, "text"
	default:
		return steps[:len(steps)-1], steps[len(steps)-1]
	}
}

func cssSelection(root *Element, steps []string) (*goquery.Selection, error) {
	n, err := root.materializeNode()
	if err != nil {
		return nil, err
	}
	sel := goquery.NewDocumentFromNode(n).Selection
	for _, step := range steps {
		sel = sel.Find(step)
	}
	return sel, nil
}

func cssElements(root *Element, expr *Expression) ([]*Element, error) {
	sel, err := cssSelection(root, expr.Steps)
	if err != nil {
		return nil, err
	}
	els := make([]*Element, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		els = append(els, FromNode(n))
	}
	return els, nil
}

func cssStrings(root *Element, expr *Expression) ([]string, error) {
	steps, extractor := splitExtractor(expr.Steps)
	sel, err := cssSelection(root, steps)
	if err != nil {
		return nil, err
	}
	return extractValues(sel.Nodes, extractor), nil
}

func extractValues(nodes []*html.Node, extractor string) []string {
	var out []string
	for _, n := range nodes {
		switch extractor {
		case "text":
			out = append(out, strings.TrimSpace(textContent(n)))
		case "textNodes":
			out = append(out, directTextNodes(n)...)
		case "ownText":
			out = append(out, strings.Join(directTextNodes(n), " "))
		case "html":
			out = append(out, innerHTML(n))
		case "outerHtml", "all":
			out = append(out, renderNode(n))
		default:
			out = append(out, attrValue(n, extractor))
		}
	}
	return out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// directTextNodes returns the element's own text children, trimmed, empties
// dropped. Each text node stays its own string; content rules rely on that
// to turn a chapter body into paragraphs.
func directTextNodes(n *html.Node) []string {
	var out []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		if t := strings.TrimSpace(c.Data); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
