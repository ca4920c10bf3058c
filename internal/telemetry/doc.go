// Package telemetry streams live loading measurements from the plant's STOMP broker.
//
// A Session owns one broker connection. It subscribes to the temperature,
// density and flow-rate topics every time the connection comes up, decodes
// each frame with package payload and hands the resulting Reading to a
// Handler. Transport loss never ends a session: it waits a constant delay and
// reconnects until Close is called.
//
// # Lifecycle
//
//	CONNECTING ──handshake──▶ CONNECTED ──loss──▶ RECONNECTING ──handshake──▶ CONNECTED ...
//	     │                        │                    │
//	     └────────── Close ───────┴────────────────────┴──────▶ CLOSED
//
// Handlers run on the session goroutine, one event at a time. Readings for a
// topic arrive in broker order; readings of different topics interleave.
//
// # Wire
//
// STOMP 1.2 over a WebSocket (the SockJS raw endpoint, "<path>/websocket") or
// plain TCP. Heartbeats are negotiated in both directions and a missed
// heartbeat is treated like any other transport loss.
package telemetry
