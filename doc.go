// Package robotmon monitors and drives an Elite EI65 robot controller.
//
// Two connections are kept to the controller. A long-lived SSH session runs
// the controller's console program; its output is fed through a virtual
// terminal (screen) and scraped for joint angle and PLC state reports
// (processor/report). A separate plain TCP connection (control) sends one-off
// commands and queries such as "stop", "speed 1500" or "getMode".
//
// # Layout
//
//	input/console     SSH session, screen feed, telemetry extraction
//	screen            VT100-subset terminal emulator
//	processor/report  joint angle and PLC state parsing
//	control           TCP command client and serialized dispatcher
//	natsclient        telemetry publishing to NATS
//	output/file       JSON Lines telemetry recorder
//	output/websocket  telemetry broadcast to browser clients
//	metric, health    Prometheus metrics and component health
//	component         lifecycle management
//	config            YAML + environment configuration
//	cmd/robotmon      CLI, one-shot commands and the interactive TUI
//
// Components implement component.LifecycleComponent and are started in
// order by component.Manager. Errors are classified through the errors
// package as transient, invalid or fatal; logging uses log/slog.
//
// # Running
//
//	robotmon --host 192.168.1.200 --known-hosts ~/.ssh/known_hosts
//	robotmon --host 192.168.1.200 speed 1500
//	robotmon --config robotmon.yaml --record telemetry.jsonl watch
package robotmon
