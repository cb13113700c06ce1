package sandbox

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM exposes a parsed isolated document to scripts as a minimal document object. Every
// element is wrapped in one stable proxy, so the same node always compares equal in JS.
// A DOM belongs to the goroutine running its VM.
type DOM struct {
	vm      *goja.Runtime
	page    *goquery.Document
	proxies map[*html.Node]*goja.Object
	nodes   map[*goja.Object]*html.Node
}

func newDOM(vm *goja.Runtime, page *goquery.Document) *DOM {
	return &DOM{
		vm:      vm,
		page:    page,
		proxies: make(map[*html.Node]*goja.Object),
		nodes:   make(map[*goja.Object]*html.Node),
	}
}

// Object builds the document object.
func (d *DOM) Object() *goja.Object {
	doc := d.vm.NewObject()
	root := d.page.Selection

	_ = doc.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return d.first(root.Find(call.Argument(0).String()))
	})
	_ = doc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return d.all(root.Find(call.Argument(0).String()))
	})
	_ = doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).String()
		return d.first(root.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("id")
			return v == want
		}))
	})
	_ = doc.Set("getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		want := strings.Fields(call.Argument(0).String())
		return d.all(root.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			for _, c := range want {
				if !s.HasClass(c) {
					return false
				}
			}
			return len(want) > 0
		}))
	})
	_ = doc.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return d.all(root.Find(strings.ToLower(call.Argument(0).String())))
	})
	_ = doc.Set("createElement", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		n := &html.Node{Type: html.ElementNode, DataAtom: atom.Lookup([]byte(tag)), Data: tag}
		return d.proxy(n)
	})
	_ = doc.Set("body", d.first(root.Find("body")))
	return doc
}

func (d *DOM) first(sel *goquery.Selection) goja.Value {
	if sel.Length() == 0 {
		return goja.Null()
	}
	return d.proxy(sel.Nodes[0])
}

func (d *DOM) all(sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	for _, n := range sel.Nodes {
		items = append(items, d.proxy(n))
	}
	return d.vm.NewArray(items...)
}

// sel wraps a single node, attached or not.
func (d *DOM) sel(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// proxy returns the element proxy for n, creating it on first use.
func (d *DOM) proxy(n *html.Node) *goja.Object {
	if obj, ok := d.proxies[n]; ok {
		return obj
	}

	obj := d.vm.NewObject()
	d.proxies[n] = obj
	d.nodes[obj] = n

	d.accessor(obj, "tagName", func() goja.Value {
		return d.vm.ToValue(strings.ToUpper(n.Data))
	}, nil)
	d.attrAccessor(obj, n, "id", "id")
	d.attrAccessor(obj, n, "className", "class")
	d.accessor(obj, "textContent", func() goja.Value {
		return d.vm.ToValue(d.sel(n).Text())
	}, func(v goja.Value) {
		d.sel(n).SetText(v.String())
	})
	d.accessor(obj, "innerHTML", func() goja.Value {
		out, err := d.sel(n).Html()
		if err != nil {
			return d.vm.ToValue("")
		}
		return d.vm.ToValue(out)
	}, func(v goja.Value) {
		d.sel(n).SetHtml(v.String())
	})
	d.accessor(obj, "children", func() goja.Value {
		return d.all(d.sel(n).Children())
	}, nil)
	d.accessor(obj, "parentElement", func() goja.Value {
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return d.proxy(n.Parent)
	}, nil)

	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := d.sel(n).Attr(call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return d.vm.ToValue(v)
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		d.sel(n).SetAttr(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		d.sel(n).RemoveAttr(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return d.first(d.sel(n).Find(call.Argument(0).String()))
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return d.all(d.sel(n).Find(call.Argument(0).String()))
	})
	_ = obj.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child, ok := call.Argument(0).(*goja.Object)
		if !ok {
			return goja.Undefined()
		}
		cn, ok := d.nodes[child]
		if !ok || cn == n || isAncestor(cn, n) {
			return child
		}
		if cn.Parent != nil {
			cn.Parent.RemoveChild(cn)
		}
		n.AppendChild(cn)
		return child
	})
	_ = obj.Set("remove", func(goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return goja.Undefined()
	})
	return obj
}

func (d *DOM) attrAccessor(obj *goja.Object, n *html.Node, prop, attr string) {
	d.accessor(obj, prop, func() goja.Value {
		v, _ := d.sel(n).Attr(attr)
		return d.vm.ToValue(v)
	}, func(v goja.Value) {
		d.sel(n).SetAttr(attr, v.String())
	})
}

func (d *DOM) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := d.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = d.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

// isAncestor reports whether a is an ancestor of n.
func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}
