// Package discord resolves the text channels a bot should announce in and
// posts messages to them over the Discord REST API.
//
// Resolution is two-phase: the guilds the bot belongs to, then the channels of
// every guild. Both phases and the final broadcast are all-or-nothing; a
// single failing guild or channel fails the whole step.
package discord
