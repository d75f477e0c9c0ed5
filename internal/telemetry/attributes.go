// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Tracer names.
const (
	TracerRelay    = "tvrelay.relay"
	TracerResolver = "tvrelay.resolver"
)

// Span attribute keys.
const (
	ChannelIDKey   = "channel.id"
	ChannelKindKey = "channel.kind"

	RelayProfileKey  = "relay.profile"
	RelaySessionKey  = "relay.session_id"
	RelayRestartsKey = "relay.restarts"
	RelayBytesKey    = "relay.bytes"

	ResolverErrorKindKey = "resolver.error_kind"
	ResolverExitCodeKey  = "resolver.exit_code"
)

// ChannelAttributes identifies a channel; kind is omitted when empty.
func ChannelAttributes(id, kind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(ChannelIDKey, id)}
	if kind != "" {
		attrs = append(attrs, attribute.String(ChannelKindKey, kind))
	}
	return attrs
}

// RelayAttributes summarise a finished relay session.
func RelayAttributes(sessionID, profile string, restarts int, bytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RelaySessionKey, sessionID),
		attribute.String(RelayProfileKey, profile),
		attribute.Int(RelayRestartsKey, restarts),
		attribute.Int64(RelayBytesKey, bytes),
	}
}
