package delivery

import (
	"context"
	"fmt"

	"github.com/Nemupy/tokumei-jinro/internal/types"
)

// Message is content sent under a masked identity.
type Message struct {
	Username    string
	AvatarURL   string
	Content     string
	Attachments []types.Attachment
	// SuppressMentions stops relayed content from pinging users or roles.
	SuppressMentions bool
}

// Announcement is a message sent as the bot itself.
type Announcement struct {
	Title        string
	Description  string
	ThumbnailURL string
	Color        int
}

// Impersonator sends messages under an arbitrary display name and avatar.
// An endpoint is an opaque per-channel handle (e.g. a webhook) resolved once and reused.
type Impersonator interface {
	ResolveEndpoint(ctx context.Context, channel types.ChannelID) (string, error)
	Impersonate(ctx context.Context, endpoint string, msg Message) error
}

// Announcer posts bot-authored announcements into a channel.
type Announcer interface {
	Announce(ctx context.Context, channel types.ChannelID, a Announcement) error
}

// DeliveryError is a single failed delivery. It never aborts sibling deliveries.
type DeliveryError struct {
	Channel types.ChannelID
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to channel %s failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
