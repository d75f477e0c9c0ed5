// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"strings"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/livecache"
)

// Available lists the channels a client can watch right now: every stable
// channel, then the resolvable channels whose last refresh succeeded, each in
// catalog order.
func Available(cat *catalog.Catalog, cache *livecache.Cache) []catalog.Channel {
	out := cat.OfKind(catalog.KindStable)
	for _, ch := range cat.OfKind(catalog.KindResolvable) {
		if cache.IsLive(ch.ID) {
			out = append(out, ch)
		}
	}
	return out
}

// Items maps channels to playlist entries pointing at baseURL/stream/<id>.
func Items(channels []catalog.Channel, baseURL string) []Item {
	baseURL = strings.TrimRight(baseURL, "/")
	items := make([]Item, 0, len(channels))
	for i, ch := range channels {
		items = append(items, Item{
			Name:    ch.Name,
			TvgID:   ch.ID,
			TvgChNo: i + 1,
			TvgLogo: ch.Logo,
			Group:   ch.Group,
			URL:     baseURL + "/stream/" + ch.ID,
		})
	}
	return items
}
