package parser

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// GoqueryEngine implements Engine with CSS selectors on goquery.
type GoqueryEngine struct{}

// NewGoqueryEngine returns the production selector engine.
func NewGoqueryEngine() GoqueryEngine {
	return GoqueryEngine{}
}

// Parse builds a document from markup.
func (GoqueryEngine) Parse(markup []byte) (Selection, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return goqueryNode{sel: doc.Selection}, nil
}

type goqueryNode struct {
	sel *goquery.Selection
}

func (n goqueryNode) SelectAll(selector string) []Element {
	found := n.sel.Find(selector)
	out := make([]Element, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, goqueryNode{sel: s})
	})
	return out
}

func (n goqueryNode) SelectFirst(selector string) (Element, bool) {
	found := n.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, false
	}
	return goqueryNode{sel: found}, true
}

func (n goqueryNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n goqueryNode) Text() string {
	return n.sel.Text()
}
