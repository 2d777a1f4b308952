// Package realtime implements Pulse's live delivery core: the presence
// registry mapping profiles to open websocket connections, the event router
// that fans domain events out to live connections, and the websocket gateway
// that authenticates handshakes and drives the per-connection loops.
//
// Delivery is at-most-once and best-effort. The durable record of every
// message lives with the chat persistence layer; this package only loses the
// live push when a target is offline or its send queue is saturated.
package realtime
