package discord

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/pfrederiksen/wca-events/internal/request"
)

// BaseURL is the Discord REST API root.
const BaseURL = "https://discord.com/api/"

var (
	ErrGuilds   = errors.New("getting guilds")
	ErrChannels = errors.New("getting channels")
	ErrDispatch = errors.New("sending messages")
)

type messageBody struct {
	Content string `json:"content"`
}

// Client talks to the Discord REST API as a bot.
type Client struct {
	client *request.Client
}

// New creates a Client for baseURL (BaseURL when empty) authorized with token.
func New(httpClient *http.Client, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{client: request.NewClient(httpClient, baseURL, token)}
}

// Guilds lists the guilds the bot is a member of.
func (c *Client) Guilds(ctx context.Context) ([]*discordgo.UserGuild, error) {
	return request.Send(ctx, c.client, request.Request{}, "users/@me/guilds",
		request.Identity[[]*discordgo.UserGuild], ErrGuilds)
}

// Channels lists the channels of every guild, flattened in guild order.
func (c *Client) Channels(ctx context.Context, guilds []*discordgo.UserGuild) ([]*discordgo.Channel, error) {
	return request.SendEach(ctx, c.client, request.Request{},
		func(g *discordgo.UserGuild) string {
			return "guilds/" + url.PathEscape(g.ID) + "/channels"
		},
		guilds,
		flatten,
		ErrChannels,
	)
}

// Broadcast posts content to every channel and returns the created messages
// in channel order.
func (c *Client) Broadcast(ctx context.Context, channels []*discordgo.Channel, content string) ([]*discordgo.Message, error) {
	r := request.Request{
		Method: http.MethodPost,
		Body:   messageBody{Content: content},
	}
	return request.SendEach(ctx, c.client, r,
		func(ch *discordgo.Channel) string {
			return "channels/" + url.PathEscape(ch.ID) + "/messages"
		},
		channels,
		request.Identity[[]*discordgo.Message],
		ErrDispatch,
	)
}

// FilterByName returns the channels whose name contains marker, keeping order.
func FilterByName(channels []*discordgo.Channel, marker string) []*discordgo.Channel {
	matched := make([]*discordgo.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil && strings.Contains(ch.Name, marker) {
			matched = append(matched, ch)
		}
	}
	return matched
}

func flatten(lists [][]*discordgo.Channel) ([]*discordgo.Channel, error) {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	flat := make([]*discordgo.Channel, 0, n)
	for _, l := range lists {
		flat = append(flat, l...)
	}
	return flat, nil
}
