// Package cli implements the command-line interface for wca-events.
//
// The cli package provides the Cobra-based CLI: the long-running poller
// (run, the default command), a one-shot check with text or JSON output, and
// helpers to create and inspect the seen-event cache. Flags override WCA_*
// environment variables, which override values from a .env file.
package cli
