// Package firmware provides the socket-backed firmware control channel:
// a Client implementing hal.Transport over a framed CBOR stream, and an
// Emulator standing in for real radio firmware during development and
// tests. The emulator matches publish and subscribe sessions by service
// name across all of its connections and relays follow-on messages
// between matched peers.
//
// Emulators announce themselves over mDNS as "_aware-fw._tcp" so clients
// can locate one without configuration.
package firmware
