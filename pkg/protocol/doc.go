// Package protocol implements the binary wire format used between a frel
// runtime and a remote client.
//
// Events flow from client to server, patch batches and errors flow back.
// The runtime itself never sees this package; pkg/server translates frames
// into runtime events and committed patch batches into frames.
//
// # Wire Format
//
// A frame is a 4-byte header (type, flags, big-endian payload length) and at
// most 65535 bytes of payload. Patch batches that do not fit one frame are
// split; every part carries the batch's frame sequence and the last one sets
// FlagFinal.
//
// # Frame Types
//
//   - FrameEvent (0x01): client → server, one EventFrame
//   - FramePatches (0x02): server → client, one committed patch batch
//   - FrameError (0x03): server → client, an ErrorFrame
//
// # Encoding
//
//   - Varint: unsigned integers (protobuf-style)
//   - ZigZag: signed integers encoded as unsigned varints
//   - Length-prefixed: strings and byte arrays prefixed with a varint length
//   - Tagged values: one tag byte followed by the value (see ValueTag)
//
// Fragment keys travel as a single uvarint (generation in the high 32 bits,
// index in the low 32 bits).
//
// Decoding never trusts length prefixes: every allocation is checked against
// the decoder's limit before it is made.
package protocol
