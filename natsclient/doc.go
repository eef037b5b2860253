// Package natsclient provides the NATS connection and the telemetry publisher
// that mirrors console telemetry onto NATS subjects.
//
// # Client
//
// Client wraps nats.Conn with connection status tracking and a connect
// circuit breaker. After a threshold of failed Connect calls (default 5) the
// circuit opens and Connect fails fast with ErrCircuitOpen until the backoff
// elapses. Once connected, reconnects are left to nats.go and surface through
// status changes and the health callback:
//
//	client, err := natsclient.NewClient([]string{"nats://localhost:4222"},
//	    natsclient.WithName("robotmon"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// # Telemetry
//
// TelemetryPublisher implements the console input's telemetry sink. Joint
// angles go to <prefix>.joints and PLC states to <prefix>.plc, each as JSON
// with a UTC timestamp. Absent PLC blocks are omitted:
//
//	{"timestamp":"2025-01-01T00:00:00Z","joints":{"S":1.5,"L":0,...}}
//	{"timestamp":"2025-01-01T00:00:00Z","plc_in":"1010..."}
//
// The publisher accepts any Publisher, so tests can substitute
// testutil.MockNATSClient for a live server.
package natsclient
