package browser

import (
	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	indicatorHidden  = "display: none; color: red"
	indicatorVisible = "display: block; color: red"

	// SrcdocAttr holds the isolated document on the surface element.
	SrcdocAttr = "srcdoc"
)

// editorAttrs disable browser text assistance on containers and fields.
var editorAttrs = []html.Attribute{
	{Key: "autocorrect", Val: "off"},
	{Key: "spellcheck", Val: "false"},
	{Key: "autocapitalize", Val: "off"},
}

// AssignID sets the container's id attribute.
func AssignID(container *goquery.Selection, wid id.WidgetID) {
	container.SetAttr("id", string(wid))
}

// NormalizeAttributes turns off autocorrect, spellcheck and autocapitalize on the container
// and each of its source fields.
func NormalizeAttributes(container *goquery.Selection) {
	apply := func(s *goquery.Selection) {
		for _, a := range editorAttrs {
			s.SetAttr(a.Key, a.Val)
		}
	}
	apply(container)
	for _, f := range Fields {
		container.ChildrenFiltered("." + f.Class()).Each(func(_ int, s *goquery.Selection) {
			apply(s)
		})
	}
}

// EnsureChrome creates the run button, syntax-error indicator, isolation surface element and
// console panel when they are missing. It reports how many elements it created.
func (d *Document) EnsureChrome(wid id.WidgetID) int {
	container, ok := d.Container(wid)
	if !ok {
		return 0
	}

	created := 0
	ensure := func(class string, build func() *html.Node) {
		if container.ChildrenFiltered("."+class).Length() > 0 {
			return
		}
		container.AppendNodes(build())
		created++
	}

	ensure(ButtonClass, func() *html.Node {
		return element(atom.Button, ButtonClass, "Run")
	})
	ensure(SyntaxErrorClass, func() *html.Node {
		n := element(atom.Div, SyntaxErrorClass, d.syntaxErrorText)
		n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: indicatorHidden})
		return n
	})
	ensure(SurfaceClass, func() *html.Node {
		return element(atom.Iframe, SurfaceClass, "")
	})
	ensure(ConsoleClass, func() *html.Node {
		return element(atom.Div, ConsoleClass, "")
	})
	return created
}

// SetIndicator shows or hides the syntax-error indicator.
func (d *Document) SetIndicator(wid id.WidgetID, visible bool) bool {
	sel, ok := d.child(wid, SyntaxErrorClass)
	if !ok {
		return false
	}
	style := indicatorHidden
	if visible {
		style = indicatorVisible
	}
	sel.SetAttr("style", style)
	return true
}

// IndicatorVisible reports whether the syntax-error indicator is currently shown.
func (d *Document) IndicatorVisible(wid id.WidgetID) bool {
	sel, ok := d.child(wid, SyntaxErrorClass)
	if !ok {
		return false
	}
	style, _ := sel.Attr("style")
	return style == indicatorVisible
}

// SetSurfaceDocument replaces the isolated document held by the surface element.
func (d *Document) SetSurfaceDocument(wid id.WidgetID, doc string) bool {
	sel, ok := d.child(wid, SurfaceClass)
	if !ok {
		return false
	}
	sel.SetAttr(SrcdocAttr, doc)
	return true
}

// SurfaceDocument returns the isolated document currently held by the surface element.
func (d *Document) SurfaceDocument(wid id.WidgetID) string {
	sel, ok := d.child(wid, SurfaceClass)
	if !ok {
		return ""
	}
	v, _ := sel.Attr(SrcdocAttr)
	return v
}

// AppendConsoleLine appends one line to the console panel.
func (d *Document) AppendConsoleLine(wid id.WidgetID, line string) bool {
	sel, ok := d.child(wid, ConsoleClass)
	if !ok {
		return false
	}
	sel.AppendNodes(element(atom.P, "", line))
	return true
}

// ConsoleLines returns the console panel's lines in order.
func (d *Document) ConsoleLines(wid id.WidgetID) []string {
	sel, ok := d.child(wid, ConsoleClass)
	if !ok {
		return nil
	}
	var lines []string
	sel.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
		lines = append(lines, p.Text())
	})
	return lines
}

// ChromeNodes returns the four chrome elements of a container, or nil for any that are missing.
// Callers use node identity to check that chrome survives re-renders.
func (d *Document) ChromeNodes(wid id.WidgetID) map[string]*html.Node {
	out := make(map[string]*html.Node, 4)
	for _, class := range []string{ButtonClass, SyntaxErrorClass, SurfaceClass, ConsoleClass} {
		if sel, ok := d.child(wid, class); ok {
			out[class] = sel.Nodes[0]
		} else {
			out[class] = nil
		}
	}
	return out
}

func element(tag atom.Atom, class, text string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: tag, Data: tag.String()}
	if class != "" {
		n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: class})
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}
