// Package file provides the telemetry recorder, an output that appends every
// joint and PLC record the console input produces to a JSON Lines file.
//
// Each line carries a Unix millisecond timestamp and a kind:
//
//	{"ts":1741964966535,"kind":"joints","joints":{"S":0.5,"L":-12.25,...}}
//	{"ts":1741964966612,"kind":"plc","plc_in":"1010..."}
//
// PLC fields whose block was not on screen are omitted, matching the NATS
// telemetry payloads.
//
// The recorder is a console.TelemetrySink and a component.LifecycleComponent:
//
//	rec, err := file.NewOutput(file.Config{
//	    Path:          "/var/log/robotmon/telemetry.jsonl",
//	    Append:        true,
//	    BufferSize:    100,
//	    FlushInterval: time.Second,
//	}, logger)
//
// Records are buffered in memory and written when BufferSize records are
// pending, every FlushInterval, and on Stop. Records arriving while the
// recorder is stopped are rejected with a transient error.
package file
