// Package frame implements the DMQ wire frame codec.
//
// Every unit exchanged with the peer is one frame: a fixed 8-byte
// little-endian header followed by the payload.
//
//	┌──────────┬──────────┬──────────┬──────────┬─────────────────┐
//	│ marker   │ id       │ seq      │ length   │ payload         │
//	│ u16 LE   │ u16 LE   │ u16 LE   │ u16 LE   │ length bytes    │
//	└──────────┴──────────┴──────────┴──────────┴─────────────────┘
//
// The marker is always 0x55AA. ID 0 is reserved for ACK frames, which
// carry no payload and echo the sequence number of the frame they
// acknowledge.
package frame
