// Package cleaner normalizes extracted article text before publishing.
package cleaner

import "strings"

// DefaultBoilerplate lists share-widget and licensing fragments that leak
// into article bodies.
var DefaultBoilerplate = []string{
	"ShareXFacebookXLinkedinXEmail",
	"EmailXLinkedin",
	"Purchase Licensing Rights",
}

// Cleaner strips boilerplate fragments and collapses whitespace.
type Cleaner struct {
	boilerplate []string
}

// New returns a Cleaner for the given fragments; nil selects DefaultBoilerplate.
func New(boilerplate []string) *Cleaner {
	if boilerplate == nil {
		boilerplate = DefaultBoilerplate
	}
	filtered := make([]string, 0, len(boilerplate))
	for _, b := range boilerplate {
		if b = strings.TrimSpace(b); b != "" {
			filtered = append(filtered, b)
		}
	}
	return &Cleaner{boilerplate: filtered}
}

// Clean collapses whitespace runs to single spaces, removes every boilerplate
// fragment and trims the result. Clean(Clean(s)) == Clean(s).
func (c *Cleaner) Clean(text string) string {
	// Removing a fragment can join two halves of another one, so repeat
	// until nothing changes.
	for {
		next := strings.Join(strings.Fields(text), " ")
		for _, b := range c.boilerplate {
			next = strings.ReplaceAll(next, b, "")
		}
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

var defaultCleaner = New(nil)

// Clean applies the default boilerplate list.
func Clean(text string) string {
	return defaultCleaner.Clean(text)
}
