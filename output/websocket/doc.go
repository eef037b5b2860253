// Package websocket broadcasts console telemetry to WebSocket clients such as
// browser dashboards.
//
// Every message is a JSON envelope:
//
//	{"type":"joints","id":"42","timestamp":1741964966535,"payload":{"S":0.5,...}}
//	{"type":"plc","id":"43","timestamp":1741964966612,"payload":{"plc_in":"1010..."}}
//
// The output is a console.TelemetrySink, so it receives exactly the records
// the console input queues. Clients are served independently: each has a
// bounded send queue and loses messages once it is full, so one stalled
// browser never delays the monitor or other clients. A newly connected
// client first receives the latest joints and PLC messages.
//
// Clients are not expected to send anything; incoming messages are read
// only to detect disconnects. Pings are sent every PingInterval.
package websocket
