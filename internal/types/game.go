package types

// PlayerID is the chat platform user ID. Compared by value.
type PlayerID string

// ChannelID is the chat platform channel ID.
type ChannelID string

// Player is an enrolled participant. Immutable for the session duration.
type Player struct {
	ID          PlayerID `json:"id"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url"`
}

// MaskedIdentity is the decoy name/avatar a player wears during the message phase.
type MaskedIdentity struct {
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url"`
	IsRealTarget bool   `json:"is_real_target"`
}

// Attachment is a file attached to an incoming message, fetched by URL on relay.
type Attachment struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
}
