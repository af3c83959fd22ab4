// Package transport provides the message channels a DMQ session runs on.
//
// A Channel carries whole encoded frames. Every backend runs a
// background reader that feeds a buffered queue, so Receive is a
// bounded wait that the session's receive loop can interleave with its
// stop signal.
//
// # Backends
//
//	┌───────────┬──────────────────────────────┬───────────────────────────┐
//	│ kind      │ endpoint                     │ framing                   │
//	├───────────┼──────────────────────────────┼───────────────────────────┤
//	│ zmq       │ tcp://localhost:5556         │ one ZeroMQ PAIR message   │
//	│ stream    │ tcp://host:port, unix:///p   │ 8-byte frame header       │
//	│ websocket │ ws://host:port/path          │ one binary WS message     │
//	│ pipe      │ (in-memory)                  │ one queue element         │
//	└───────────┴──────────────────────────────┴───────────────────────────┘
//
// The zmq backend interoperates with the reference DelegateMQ server.
package transport
