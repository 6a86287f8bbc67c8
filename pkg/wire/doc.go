// Package wire defines the CBOR encoding of the firmware control channel.
//
// Every message is an envelope carrying a kind (command, response or
// event), a type discriminator, an optional transaction id and a
// type-specific payload. Commands flow host to firmware; responses and
// events flow firmware to host. Messages use integer CBOR keys and
// deterministic encoding.
//
// Framing on the byte stream is a 4-byte big-endian length prefix
// followed by the CBOR envelope.
package wire
