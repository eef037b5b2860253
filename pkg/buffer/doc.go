// Package buffer provides generic, thread-safe buffers.
//
// Queue is an unbounded FIFO used to hand telemetry from the console session
// to the presentation loop. Producers never block and nothing is dropped;
// consumers poll with TryRead or Drain on their own schedule.
//
//	q, _ := buffer.NewQueue[report.JointAngles]()
//	_ = q.Write(angles)
//	for _, a := range q.Drain() {
//	    render(a)
//	}
//
// CircularBuffer keeps the most recent N items, evicting the oldest
// (DropOldest) or rejecting the newest (DropNewest) when full. The operator
// log pane keeps its history in one.
//
// Both always collect Statistics. WithMetrics additionally exports them to
// Prometheus through a metric.MetricsRegistry.
package buffer
