// Package hal defines the boundary to the radio firmware: the Transport
// interface through which the coordinator issues tagged commands, the
// Handler interface through which responses and unsolicited events are
// delivered back, and the translation of firmware status codes into the
// caller-facing reasons of pkg/aware.
//
// Implementations of Transport must be non-blocking: a command call only
// hands the command to the control channel; the outcome arrives later as
// a Handler callback carrying the same transaction id.
package hal
