package html

import (
	"bytes"
	"fmt"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML tree shared by every element handle produced
// from it. Handles are created and freed by guest code in arbitrary order,
// so the tree is reference counted and guarded by a read/write lock; the
// tree stays valid while at least one live handle retains it.
type Document struct {
	mu      sync.RWMutex
	doc     *goquery.Document
	baseURI string
	refs    int
}

// ParseError reports an unparseable document or fragment.
type ParseError struct {
	BaseURI string
	Err     error
}

func (e *ParseError) Error() string {
	if e.BaseURI != "" {
		return fmt.Sprintf("parse html (base %s): %v", e.BaseURI, e.Err)
	}
	return fmt.Sprintf("parse html: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses a full HTML document. The returned element spans the whole
// document and holds the initial reference.
func Parse(data []byte, baseURI string) (*Element, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{BaseURI: baseURI, Err: err}
	}
	d := &Document{doc: doc, baseURI: baseURI, refs: 1}
	return &Element{doc: d, sel: doc.Selection}, nil
}

// ParseFragment parses an HTML fragment. goquery wraps fragments in a
// synthetic html/body pair, so the returned element selects the body
// children rather than the synthetic wrapper.
func ParseFragment(data []byte, baseURI string) (*Element, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{BaseURI: baseURI, Err: err}
	}
	d := &Document{doc: doc, baseURI: baseURI, refs: 1}
	return &Element{doc: d, sel: doc.Find("body").Children()}, nil
}

// Retain adds a reference for a new handle aliasing this document.
func (d *Document) Retain() {
	d.mu.Lock()
	d.refs++
	d.mu.Unlock()
}

// Release drops one reference. When the count reaches zero the parsed
// tree is detached so nothing can revive a freed handle.
func (d *Document) Release() {
	d.mu.Lock()
	d.refs--
	if d.refs <= 0 {
		d.doc = nil
	}
	d.mu.Unlock()
}

// Refs returns the live handle count.
func (d *Document) Refs() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.refs
}

// BaseURI returns the base URI the document was parsed with.
func (d *Document) BaseURI() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.baseURI
}

func (d *Document) absURL(ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(d.baseURI)
	if err != nil || d.baseURI == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
