// Package deliverytest provides an in-memory Impersonator and Announcer.
package deliverytest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Nemupy/tokumei-jinro/internal/delivery"
	"github.com/Nemupy/tokumei-jinro/internal/types"
)

var ErrUnreachable = errors.New("channel unreachable")

// Sent is one impersonated message as seen by its channel.
type Sent struct {
	Channel types.ChannelID
	Message delivery.Message
}

// Announced is one announcement as seen by its channel.
type Announced struct {
	Channel      types.ChannelID
	Announcement delivery.Announcement
}

// Recorder records everything sent through it. Endpoints are "hook:<channel>".
type Recorder struct {
	mu        sync.Mutex
	sent      []Sent
	announced []Announced
	resolved  map[types.ChannelID]int
	failing   map[types.ChannelID]bool
}

func NewRecorder() *Recorder {
	return &Recorder{
		resolved: make(map[types.ChannelID]int),
		failing:  make(map[types.ChannelID]bool),
	}
}

// Fail makes every delivery to ch return ErrUnreachable.
func (r *Recorder) Fail(ch types.ChannelID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing[ch] = true
}

func (r *Recorder) ResolveEndpoint(_ context.Context, ch types.ChannelID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[ch]++
	return "hook:" + string(ch), nil
}

func (r *Recorder) Impersonate(_ context.Context, endpoint string, msg delivery.Message) error {
	ch := types.ChannelID(endpoint[len("hook:"):])

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing[ch] {
		return ErrUnreachable
	}
	r.sent = append(r.sent, Sent{Channel: ch, Message: msg})
	return nil
}

func (r *Recorder) Announce(_ context.Context, ch types.ChannelID, a delivery.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing[ch] {
		return ErrUnreachable
	}
	r.announced = append(r.announced, Announced{Channel: ch, Announcement: a})
	return nil
}

// Sent returns impersonated messages sorted by channel.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Announced returns announcements sorted by channel.
func (r *Recorder) Announced() []Announced {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Announced, len(r.announced))
	copy(out, r.announced)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Channels returns the channels that received impersonated messages, sorted.
func (r *Recorder) Channels() []types.ChannelID {
	sent := r.Sent()
	out := make([]types.ChannelID, 0, len(sent))
	for _, s := range sent {
		out = append(out, s.Channel)
	}
	return out
}

// ResolveCount returns how often an endpoint was resolved for ch.
func (r *Recorder) ResolveCount(ch types.ChannelID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved[ch]
}
