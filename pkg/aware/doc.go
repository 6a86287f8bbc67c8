// Package aware defines the public types of the neighbor-awareness
// discovery stack: radio configuration requests, publish/subscribe session
// configurations, hardware capability snapshots, caller-facing failure
// reasons and the callback interfaces through which the coordinator
// delivers asynchronous results and discovery events.
//
// The types in this package are plain values with no behavior beyond
// validation and merging. The coordinator (pkg/coordinator) owns all
// state; the hardware boundary lives in pkg/hal.
package aware
