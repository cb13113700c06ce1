// Package registry tracks which widget identities have been initialized on a host page and
// the outcome of each widget's most recent render.
//
// The outcome protocol is pessimistic: starting a render records "failed" before any content
// is loaded, and only the isolated document's completion signal flips it to "succeeded".
// A surface that never completes therefore leaves the widget in the failed state, which keeps
// the syntax-error indicator visible.
//
// A Registry is owned by one widget controller and lives exactly as long as it does.
package registry
