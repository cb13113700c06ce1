// Package session manages live host page sessions.
//
// A Page pairs a parsed host document with its event loop and widget controller. Everything
// that touches the page runs on that loop through Page.Do; observers subscribe to the page's
// widget events through Page.Subscribe.
//
// Components:
//   - Manager: creates, finds and expires pages
//   - Page: one host document, its loop and its controller
//
// Lifecycle:
//  1. Create parses the HTML, starts the loop and scans for widgets
//  2. Callers drive the page with Do (input, run, scan) and read events from Subscribe
//  3. Pages idle longer than the TTL are closed by the cleanup loop, or explicitly by Delete
//
// Example Usage:
//
//	manager := session.NewManager(session.Options{TTL: time.Hour})
//	manager.Start()
//	page, err := manager.Create(ctx, html, "inline")
//	err = page.Do(ctx, func(c *widget.Controller) { c.Run(wid) })
package session
