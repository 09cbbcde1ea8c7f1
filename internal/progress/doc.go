// Package progress delivers live task progress over a websocket
// subscription. The channel owns the connection lifecycle: exponential
// backoff reconnection up to a fixed attempt cap, a snapshot resync on
// every connect, and a parked failed state recoverable by an explicit
// reconnect.
package progress
