// Package poller runs detection cycles on a fixed schedule.
//
// A cycle scrapes the listing, diffs it against the seen store and, when new
// competitions were found, sends one combined announcement. Cycles never
// overlap: Cycle is serialized by a mutex and the scheduled job skips a tick
// while the previous cycle is still running. Every error is terminal to the
// cycle it happened in only; the next tick starts from scratch.
package poller
