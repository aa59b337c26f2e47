// Package notifier delivers competition announcements.
//
// The Discord notifier resolves every channel whose name contains the
// configured marker across all guilds the bot belongs to and posts the
// announcement to each of them. The dry-run notifier writes the announcement
// to an io.Writer instead, which is useful for checking a configuration
// without a bot token.
package notifier
