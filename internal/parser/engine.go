package parser

// Selection is anything selectors can be evaluated against.
type Selection interface {
	// SelectAll returns every element matching selector, in document order.
	SelectAll(selector string) []Element
	// SelectFirst returns the first element matching selector.
	SelectFirst(selector string) (Element, bool)
}

// Element is one matched node.
type Element interface {
	Selection
	Attr(name string) (string, bool)
	Text() string
}

// Engine parses raw markup into a queryable document.
type Engine interface {
	Parse(markup []byte) (Selection, error)
}
