// File: transport/profile.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection profiles: how many physical channels a pool opens and
// which traffic classes map onto which of them. Immutable once built;
// one profile can be shared across many pools.

package transport

import (
	"fmt"
	"time"

	"github.com/momentics/nodewire/config"
)

// ChannelType classifies traffic onto pool lanes.
type ChannelType uint8

const (
	TypeRegular ChannelType = iota
	TypeBulk
	TypeState
	TypePing
	TypeRecovery
	numChannelTypes
)

func (t ChannelType) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeBulk:
		return "bulk"
	case TypeState:
		return "state"
	case TypePing:
		return "ping"
	case TypeRecovery:
		return "recovery"
	default:
		return fmt.Sprintf("channel_type(%d)", uint8(t))
	}
}

// typeHandle is one contiguous block of channel indices serving a set
// of types.
type typeHandle struct {
	offset int
	length int
	types  []ChannelType
}

// Profile declares a pool's shape and per-pool timeouts.
type Profile struct {
	handles     []typeHandle
	numChannels int

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	Compress         bool
}

// NumChannels returns the number of physical channels the profile opens.
func (p *Profile) NumChannels() int { return p.numChannels }

// ProfileBuilder assembles a Profile. Each AddChannels call claims the
// next block of channel indices for the given types.
type ProfileBuilder struct {
	handles     []typeHandle
	numChannels int
	seen        [numChannelTypes]bool
	err         error

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	Compress         bool
}

// NewProfileBuilder creates a builder with no channels and no timeouts.
func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{PingInterval: -1}
}

// AddChannels assigns count channels to the given traffic types.
func (b *ProfileBuilder) AddChannels(count int, types ...ChannelType) *ProfileBuilder {
	if b.err != nil {
		return b
	}
	if count <= 0 {
		b.err = fmt.Errorf("profile: channel count must be positive, got %d", count)
		return b
	}
	if len(types) == 0 {
		b.err = fmt.Errorf("profile: at least one channel type per handle")
		return b
	}
	for _, t := range types {
		if t >= numChannelTypes {
			b.err = fmt.Errorf("profile: unknown channel type %d", t)
			return b
		}
		if b.seen[t] {
			b.err = fmt.Errorf("profile: channel type [%s] is already registered", t)
			return b
		}
		b.seen[t] = true
	}
	b.handles = append(b.handles, typeHandle{offset: b.numChannels, length: count, types: types})
	b.numChannels += count
	return b
}

// Build finalizes the profile.
func (b *ProfileBuilder) Build() (*Profile, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.numChannels == 0 {
		return nil, fmt.Errorf("profile: must be configured with at least one channel")
	}
	return &Profile{
		handles:          b.handles,
		numChannels:      b.numChannels,
		ConnectTimeout:   b.ConnectTimeout,
		HandshakeTimeout: b.HandshakeTimeout,
		PingInterval:     b.PingInterval,
		Compress:         b.Compress,
	}, nil
}

// DefaultProfile builds the standard lane split from settings.
func DefaultProfile(s config.Settings) (*Profile, error) {
	b := NewProfileBuilder()
	b.ConnectTimeout = s.ConnectTimeout.Duration
	b.HandshakeTimeout = s.HandshakeTimeout.Duration
	b.PingInterval = s.PingInterval.Duration
	b.Compress = s.Compress
	b.AddChannels(s.Lanes.Regular, TypeRegular)
	if s.Lanes.Bulk > 0 {
		b.AddChannels(s.Lanes.Bulk, TypeBulk)
	}
	if s.Lanes.State > 0 || s.Lanes.Recovery > 0 {
		n := s.Lanes.State + s.Lanes.Recovery
		b.AddChannels(n, TypeState, TypeRecovery)
	}
	if s.Lanes.Ping > 0 {
		b.AddChannels(s.Lanes.Ping, TypePing)
	}
	return b.Build()
}
