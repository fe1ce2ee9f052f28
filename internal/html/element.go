package html

import (
	gohtml "html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
)

// Element is a handle onto zero or more nodes of a shared Document.
// Selector operations return new handles aliasing the same document; the
// caller is responsible for retaining/releasing document references when
// it duplicates or frees handles.
type Element struct {
	doc *Document
	sel *goquery.Selection
}

// Document returns the backing shared document.
func (e *Element) Document() *Document { return e.doc }

// derive wraps a selection of the same document in a new handle without
// touching the reference count.
func (e *Element) derive(sel *goquery.Selection) *Element {
	return &Element{doc: e.doc, sel: sel}
}

// Count returns the number of nodes the handle selects.
func (e *Element) Count() int {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.sel.Length()
}

// Select runs a CSS selector against the handle's nodes.
func (e *Element) Select(selector string) *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Find(selector))
}

// First narrows the handle to its first node.
func (e *Element) First() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.First())
}

// Last narrows the handle to its last node.
func (e *Element) Last() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Last())
}

// At narrows the handle to the node at index i.
func (e *Element) At(i int) *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Eq(i))
}

// Parent, Children, Siblings, Next and Prev navigate the tree.
func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Parent())
}

func (e *Element) Children() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Children())
}

func (e *Element) Siblings() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Siblings())
}

func (e *Element) Next() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Next())
}

func (e *Element) Prev() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.derive(e.sel.Prev())
}

// Attr returns an attribute value, absolutizing href/src-style references
// when asked for "abs:<name>".
func (e *Element) Attr(name string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if rest, ok := strings.CutPrefix(name, "abs:"); ok {
		v, _ := e.sel.Attr(rest)
		return e.doc.absURL(v)
	}
	v, _ := e.sel.Attr(name)
	return v
}

// HasAttr reports whether the first node carries the attribute.
func (e *Element) HasAttr(name string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	_, ok := e.sel.Attr(name)
	return ok
}

// Text returns the combined text of the selection, whitespace-trimmed.
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return strings.TrimSpace(e.sel.Text())
}

// OwnText returns the text of the first node excluding its children.
func (e *Element) OwnText() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if e.sel.Length() == 0 {
		return ""
	}
	var b strings.Builder
	for n := e.sel.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xhtml.TextNode {
			b.WriteString(n.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// InnerHTML returns the serialized contents of the first node.
func (e *Element) InnerHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	h, err := e.sel.Html()
	if err != nil {
		return ""
	}
	return h
}

// OuterHTML returns the serialized selection including the nodes.
func (e *Element) OuterHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	h, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return h
}

// ID returns the id attribute of the first node.
func (e *Element) ID() string { return e.Attr("id") }

// TagName returns the tag of the first node.
func (e *Element) TagName() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if e.sel.Length() == 0 {
		return ""
	}
	return e.sel.Nodes[0].Data
}

// ClassName returns the class attribute of the first node.
func (e *Element) ClassName() string { return e.Attr("class") }

// HasClass reports whether the first node carries the class.
func (e *Element) HasClass(class string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.sel.HasClass(class)
}

// BaseURI returns the document base URI.
func (e *Element) BaseURI() string { return e.doc.BaseURI() }

// Mutations below rebuild parts of the shared tree, so they take the
// write lock. The handle itself stays valid across mutation.

// SetText replaces the contents of the selection with escaped text.
func (e *Element) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetText(text)
}

// SetHTML replaces the contents of the selection with parsed markup.
func (e *Element) SetHTML(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetHtml(markup)
}

// Prepend inserts parsed markup before the existing children.
func (e *Element) Prepend(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.PrependHtml(markup)
}

// Append inserts parsed markup after the existing children.
func (e *Element) Append(markup string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.AppendHtml(markup)
}

// SetAttr sets an attribute on every selected node.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.SetAttr(name, value)
}

// RemoveAttr removes an attribute from every selected node.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel.RemoveAttr(name)
}

// Escape escapes HTML entities in s.
func Escape(s string) string { return gohtml.EscapeString(s) }

// Unescape resolves HTML entities in s.
func Unescape(s string) string { return gohtml.UnescapeString(s) }
