package browser

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// EditorBridge reads and writes a widget's source fields by identity.
type EditorBridge struct {
	doc *Document
}

// NewEditorBridge creates a bridge over doc.
func NewEditorBridge(doc *Document) *EditorBridge {
	return &EditorBridge{doc: doc}
}

// ReadField returns the current text of a field. A missing field or container reads as "".
func (b *EditorBridge) ReadField(wid id.WidgetID, field Field) string {
	n := b.fieldNode(wid, field)
	if n == nil {
		return ""
	}
	if n.DataAtom == atom.Input {
		return htmlquery.SelectAttr(n, "value")
	}
	return htmlquery.InnerText(n)
}

// ReadAll returns every field's text keyed by field.
func (b *EditorBridge) ReadAll(wid id.WidgetID) map[Field]string {
	out := make(map[Field]string, len(Fields))
	for _, f := range Fields {
		out[f] = b.ReadField(wid, f)
	}
	return out
}

// WriteField replaces a field's text. It reports false when the field does not exist.
func (b *EditorBridge) WriteField(wid id.WidgetID, field Field, value string) bool {
	n := b.fieldNode(wid, field)
	if n == nil {
		return false
	}
	if n.DataAtom == atom.Input {
		setAttr(n, "value", value)
		return true
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if value != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	}
	return true
}

// HasField reports whether the container has the field.
func (b *EditorBridge) HasField(wid id.WidgetID, field Field) bool {
	return b.fieldNode(wid, field) != nil
}

// fieldNode resolves "#wid > .sandbox-<field>" to the first match in document order.
func (b *EditorBridge) fieldNode(wid id.WidgetID, field Field) *html.Node {
	expr := fmt.Sprintf(`//*[@id=%s]/*[contains(concat(" ", normalize-space(@class), " "), " %s ")]`,
		xpathLiteral(string(wid)), field.Class())
	n, err := htmlquery.Query(b.doc.Root(), expr)
	if err != nil {
		return nil
	}
	return n
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key && n.Attr[i].Namespace == "" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
