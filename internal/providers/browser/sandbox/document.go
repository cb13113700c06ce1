package sandbox

import (
	"strconv"
	"strings"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/shared/id"
	"github.com/bytedance/sonic"
)

// BuildDocument assembles the isolated document for one render. The CSS, HTML and JS
// fragments are inserted verbatim; a fragment containing "</script>" ends the script block
// early, exactly as it would in a browser.
//
// The user script receives the widget's forwarder as its console binding and always reports
// completion, whether or not it threw.
func BuildDocument(wid id.WidgetID, f Fragments) string {
	lit := idLiteral(wid)

	var b strings.Builder
	b.Grow(len(f.CSS) + len(f.HTML) + len(f.JS) + 256)
	b.WriteString("<style>")
	b.WriteString(f.CSS)
	b.WriteString("</style><body>")
	b.WriteString(f.HTML)
	b.WriteString("<script>\n(function (console) {\ntry {\n")
	b.WriteString(f.JS)
	b.WriteString("\n} catch (e) {\nconsole.error(e);\n} finally {\nwindow.parent.tinySandbox.success(")
	b.WriteString(lit)
	b.WriteString(");\n}\n")
	b.WriteString(guardTail(lit))
	b.WriteString("\n</script></body>")
	return b.String()
}

// guardTail closes the guarded wrapper by handing it the widget's forwarder.
func guardTail(lit string) string {
	return "})(window.parent.tinySandbox.logger(" + lit + "));"
}

// isGuarded reports whether a script block is the wrapper BuildDocument emits for wid.
func isGuarded(src string, wid id.WidgetID) bool {
	return strings.HasSuffix(strings.TrimSpace(src), guardTail(idLiteral(wid)))
}

// idLiteral encodes the identity as a JS string literal that is also safe inside markup.
func idLiteral(wid id.WidgetID) string {
	lit, err := sonic.ConfigStd.MarshalToString(string(wid))
	if err != nil {
		return strconv.Quote(string(wid))
	}
	return lit
}
