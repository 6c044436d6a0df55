// Package natsrpc carries the herald broker operations over NATS
// request/reply and delivers notification batches to remote
// subscribers over per-connection subjects.
//
// Wire layout:
//   - herald.rpc.<op>: one request/reply subject per broker
//     operation, JSON envelopes defined in wire.go.
//   - herald.notify.<conn>: the server publishes batches for the
//     session bound to that connection handle; the client subscribes
//     there and invokes the local Notifier.
//
// Connection lifecycle: a client obtains a handle with the connect
// operation and gives it back with disconnect. The voluntary
// disconnect call is the only disconnect signal the server receives,
// since core NATS does not expose per-client connection loss to services. A
// client that vanishes without disconnecting leaves its session bound
// until something reuses the identity; deliveries to its notify
// subject become dispatcher-local failures.
package natsrpc
