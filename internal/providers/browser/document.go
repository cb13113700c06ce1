package browser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/PuerkitoBio/goquery"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

const (
	// MaxHTMLSize limits host pages to 10MB to prevent memory exhaustion
	MaxHTMLSize = 10 * 1024 * 1024

	// ContainerClass marks a widget container.
	ContainerClass = "tiny-sandbox"
	// FieldClassPrefix prefixes the class of each source field.
	FieldClassPrefix = "sandbox-"

	ButtonClass      = "button"
	SyntaxErrorClass = "syntax-error"
	SurfaceClass     = "sandbox"
	ConsoleClass     = "console"

	// DefaultSyntaxErrorText is shown by the indicator.
	DefaultSyntaxErrorText = "Syntax error!"
)

// Field names one of a widget's source fields.
type Field string

const (
	FieldHTML Field = "html"
	FieldCSS  Field = "css"
	FieldJS   Field = "js"
)

// Fields lists the source fields in read order.
var Fields = []Field{FieldHTML, FieldCSS, FieldJS}

// Class returns the class marking this field inside a container.
func (f Field) Class() string {
	return FieldClassPrefix + string(f)
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(s)); f {
	case FieldHTML, FieldCSS, FieldJS:
		return f, nil
	default:
		return "", fmt.Errorf("unknown field %q", s)
	}
}

// Document is a parsed host page.
type Document struct {
	doc             *goquery.Document
	syntaxErrorText string
}

// Option configures a Document.
type Option func(*Document)

// WithSyntaxErrorText overrides the indicator text.
func WithSyntaxErrorText(text string) Option {
	return func(d *Document) {
		if text != "" {
			d.syntaxErrorText = text
		}
	}
}

// ValidateHTML checks HTML size and returns error if too large
func ValidateHTML(data []byte, limit int) error {
	if limit <= 0 || limit > MaxHTMLSize {
		limit = MaxHTMLSize
	}
	if len(data) == 0 {
		return fmt.Errorf("html content required")
	}
	if len(data) > limit {
		return fmt.Errorf("html exceeds maximum size of %d bytes", limit)
	}
	return nil
}

// DetectCharset detects and returns charset from HTML bytes. Valid UTF-8 is taken as is.
func DetectCharset(data []byte) string {
	if utf8.Valid(data) {
		return "utf-8"
	}
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// LoadHTML parses a host page, converting it to UTF-8 first when needed.
func LoadHTML(data []byte, opts ...Option) (*Document, error) {
	if err := ValidateHTML(data, 0); err != nil {
		return nil, err
	}

	reader, err := charset.NewReaderLabel(DetectCharset(data), bytes.NewReader(data))
	if err != nil {
		// Unknown label: parse the raw bytes
		reader = bytes.NewReader(data)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return newDocument(doc, opts...), nil
}

// ParseString parses a UTF-8 host page.
func ParseString(src string, opts ...Option) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return newDocument(doc, opts...), nil
}

func newDocument(doc *goquery.Document, opts ...Option) *Document {
	d := &Document{doc: doc, syntaxErrorText: DefaultSyntaxErrorText}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.doc.Nodes[0]
}

// HTML renders the current state of the page.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

// Containers returns every widget container in document order.
func (d *Document) Containers() []*goquery.Selection {
	var out []*goquery.Selection
	d.doc.Find("." + ContainerClass).Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

// ContainerID returns the container's id attribute, or "" when it has none.
func ContainerID(container *goquery.Selection) id.WidgetID {
	v, _ := container.Attr("id")
	return id.WidgetID(v)
}

// Container finds the first element whose id equals wid.
func (d *Document) Container(wid id.WidgetID) (*goquery.Selection, bool) {
	sel := d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == string(wid)
	}).First()
	return sel, sel.Length() > 0
}

// child returns the container's first direct child carrying class.
func (d *Document) child(wid id.WidgetID, class string) (*goquery.Selection, bool) {
	container, ok := d.Container(wid)
	if !ok {
		return nil, false
	}
	sel := container.ChildrenFiltered("." + class).First()
	return sel, sel.Length() > 0
}
