// Package coordinator serializes commands from multiple independent
// clients onto the single asynchronous firmware control channel.
//
// The Coordinator is the process's one serialization point: commands,
// firmware responses, timeouts and unsolicited notifications are processed
// one at a time by a single event loop. At most one hardware command is
// outstanding at any time; commands arriving while one is in flight are
// deferred in FIFO order and replayed once the machine returns to idle.
// Responses are correlated to their command by transaction id; stale or
// duplicate ids are logged and dropped.
package coordinator
