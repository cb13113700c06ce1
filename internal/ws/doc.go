// Package ws streams a page's widget events over WebSocket and accepts edits back.
//
// One connection follows one page. All writes go through a single writer goroutine, as
// gorilla/websocket allows only one concurrent writer per connection. Frames are JSON
// encoded with sonic.
//
// Message Types (Client → Server):
//   - input: Replace a widget field's text {widget, field, value}
//   - run: Re-render a widget now {widget}
//   - scan: Initialize containers added since the last scan
//   - ping: Keep-alive ping
//
// Message Types (Server → Client):
//   - connected: Subscription established
//   - event: A widget event (initialized, rendered, console, loaded)
//   - ack: An input or run was applied
//   - scanned: Identities initialized by a scan
//   - pong: Reply to ping
//   - error: The request was rejected
//
// Example Usage:
//
//	handler := ws.NewHandler(manager, metrics, logger)
//	router.GET("/pages/:id/stream", handler.HandleConnection)
package ws
