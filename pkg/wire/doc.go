// Package wire defines the DMQ message schema and payload serializers.
//
// A frame payload is a sequence of top-level serialized values, one per
// remote delegate argument. Each argument is a flat ordered array of the
// fields of one struct, without field names:
//
//	CommandMsg   [action, pollTime]
//	Alarm        [source, alarm] [note]
//	DataMsg      [[[id, position, voltage]...], [[id, supplyV, readingV]...]]
//	ActuatorMsg  [id, position]
//
// Field order is part of the wire contract and must match the peer.
//
// # Serializers
//
// MsgPack is the default and matches the reference peer. CBOR is
// available for peers built against the CBOR serializer. Both decode
// into generic values which the schema converts into typed messages,
// so integer widths chosen by the sender do not matter.
//
// # Arity
//
// Decoding ignores extra trailing arguments and extra trailing array
// elements. Fewer elements than a struct has fields fail with an
// *ArityError.
package wire
