// Package errors provides standardized error handling for the robot monitor.
//
// # Overview
//
// Errors are sorted into three classes that drive handling decisions:
//
//   - Transient: lost connections, read timeouts, EOF on the console stream.
//     The console session reconnects with backoff on these.
//   - Invalid: malformed report fields and control replies that do not match
//     the expected pattern. These are logged and the cycle is skipped.
//   - Fatal: bad or missing credentials, authentication rejection, invalid
//     configuration. The console session stops and is not retried.
//
// # Wrapping
//
// Wrap errors with the component, method and failed action:
//
//	if err != nil {
//	    return errors.WrapFatal(err, "console", "dial", "ssh handshake")
//	}
//
// The message follows "component.method: action failed: cause" and the
// original error stays reachable through errors.Is and errors.As.
//
// # Classification
//
//	switch errors.Classify(err) {
//	case errors.ErrorFatal:
//	    // stop
//	case errors.ErrorTransient:
//	    // retry.Do(...)
//	}
//
// A ClassifiedError always reports its own class. Unclassified errors are
// matched against the sentinel variables and a few message patterns, and
// default to transient.
package errors
