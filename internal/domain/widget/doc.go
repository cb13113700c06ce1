// Package widget drives the lifecycle of playground widgets on one host page.
//
// A Controller discovers widget containers, gives each an identity, builds its chrome once and
// renders it into an isolated surface. Edits to the HTML and CSS fields re-render after a
// debounce window; the JS field only renders on an explicit Run. When a surface finishes
// loading, the controller shows the syntax-error indicator if the script never reported
// completion.
//
// A Controller is confined to its page's event loop: every method must be called from a task
// running on that loop.
package widget
