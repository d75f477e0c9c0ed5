// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog holds the static channel catalog: channel id to source descriptor.
// A Catalog is immutable after construction and safe for concurrent reads.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind distinguishes channels with a fixed URL from channels whose URL must be resolved.
type Kind string

const (
	// KindStable channels carry a fixed, non-expiring playable URL.
	KindStable Kind = "stable"
	// KindResolvable channels carry an opaque locator handed to the resolver.
	KindResolvable Kind = "resolvable"
)

var (
	ErrDuplicateChannel = errors.New("duplicate channel id")
	ErrInvalidChannel   = errors.New("invalid channel")
)

// Source is the source descriptor of one channel.
type Source struct {
	Kind    Kind
	Locator string
}

// Channel is one catalog entry. Name, Logo and Group are display metadata only.
type Channel struct {
	ID     string
	Source Source
	Name   string
	Logo   string
	Group  string
}

// Catalog is an ordered, read-only set of channels.
type Catalog struct {
	order []string
	byID  map[string]Channel
}

// New validates channels and builds a catalog preserving their order.
func New(channels []Channel) (*Catalog, error) {
	c := &Catalog{
		order: make([]string, 0, len(channels)),
		byID:  make(map[string]Channel, len(channels)),
	}
	for i, ch := range channels {
		ch.ID = strings.TrimSpace(ch.ID)
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has empty id", ErrInvalidChannel, i)
		}
		if strings.ContainsAny(ch.ID, "/?#") {
			return nil, fmt.Errorf("%w: id %q contains reserved characters", ErrInvalidChannel, ch.ID)
		}
		switch ch.Source.Kind {
		case KindStable, KindResolvable:
		default:
			return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidChannel, ch.ID, ch.Source.Kind)
		}
		if strings.TrimSpace(ch.Source.Locator) == "" {
			return nil, fmt.Errorf("%w: %s has empty locator", ErrInvalidChannel, ch.ID)
		}
		if _, dup := c.byID[ch.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, ch.ID)
		}
		if ch.Name == "" {
			ch.Name = DisplayName(ch.ID)
		}
		c.order = append(c.order, ch.ID)
		c.byID[ch.ID] = ch
	}
	return c, nil
}

// MustNew is New for static tables in tests and defaults.
func MustNew(channels []Channel) *Catalog {
	c, err := New(channels)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the channel for id.
func (c *Catalog) Lookup(id string) (Channel, bool) {
	ch, ok := c.byID[id]
	return ch, ok
}

// Len returns the number of channels.
func (c *Catalog) Len() int {
	return len(c.order)
}

// All returns every channel in catalog order.
func (c *Catalog) All() []Channel {
	out := make([]Channel, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// OfKind returns the channels of one kind in catalog order.
func (c *Catalog) OfKind(k Kind) []Channel {
	var out []Channel
	for _, id := range c.order {
		if ch := c.byID[id]; ch.Source.Kind == k {
			out = append(out, ch)
		}
	}
	return out
}

// Resolvable returns the ids of all resolvable channels: the refresh work set.
func (c *Catalog) Resolvable() []string {
	var ids []string
	for _, ch := range c.OfKind(KindResolvable) {
		ids = append(ids, ch.ID)
	}
	return ids
}

// DisplayName derives a human readable name from a channel id.
// Example: "dd_malayalam" → "Dd Malayalam"
func DisplayName(id string) string {
	s := strings.NewReplacer("_", " ", "-", " ").Replace(id)
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}
