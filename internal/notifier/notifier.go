package notifier

import (
	"context"

	"github.com/pfrederiksen/wca-events/internal/discord"
	"github.com/pfrederiksen/wca-events/internal/logger"
)

// DefaultMention prefixes every announcement.
const DefaultMention = "@here"

// Notifier defines the interface for delivering an announcement
type Notifier interface {
	// Notify delivers message and returns the number of destinations reached.
	// On error the count is 0: a failed dispatch is never a partial success.
	Notify(ctx context.Context, message string) (int, error)
}

// DiscordNotifier posts announcements to marker channels on Discord
type DiscordNotifier struct {
	client  *discord.Client
	marker  string
	mention string
}

// NewDiscordNotifier creates a notifier posting to channels whose name
// contains marker. An empty mention posts the message unprefixed.
func NewDiscordNotifier(client *discord.Client, marker, mention string) *DiscordNotifier {
	return &DiscordNotifier{
		client:  client,
		marker:  marker,
		mention: mention,
	}
}

// Notify resolves the marker channels and posts message to all of them.
func (n *DiscordNotifier) Notify(ctx context.Context, message string) (int, error) {
	guilds, err := n.client.Guilds(ctx)
	if err != nil {
		return 0, err
	}

	channels, err := n.client.Channels(ctx, guilds)
	if err != nil {
		return 0, err
	}

	targets := discord.FilterByName(channels, n.marker)
	if len(targets) == 0 {
		logger.Warn("No announcement channels found", logger.Fields{
			"marker":   n.marker,
			"guilds":   len(guilds),
			"channels": len(channels),
		})
		return 0, nil
	}

	if _, err := n.client.Broadcast(ctx, targets, Format(n.mention, message)); err != nil {
		return 0, err
	}

	logger.Info("Announcement sent", logger.Fields{
		"guilds":   len(guilds),
		"channels": len(targets),
	})
	return len(targets), nil
}

// Format prefixes message with mention on its own line.
func Format(mention, message string) string {
	if mention == "" {
		return message
	}
	return mention + "\n" + message
}
