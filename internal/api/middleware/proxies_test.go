// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustedProxies(t *testing.T) {
	nets, err := ParseTrustedProxies("10.0.0.0/8, 192.0.2.7 ,, 2001:db8::1")
	require.NoError(t, err)
	require.Len(t, nets, 3)

	assert.True(t, RemoteIsTrusted("10.1.2.3:5555", nets))
	assert.True(t, RemoteIsTrusted("192.0.2.7:80", nets))
	assert.False(t, RemoteIsTrusted("192.0.2.8:80", nets))
	assert.True(t, RemoteIsTrusted("[2001:db8::1]:443", nets))
	assert.False(t, RemoteIsTrusted("garbage", nets))
	assert.False(t, RemoteIsTrusted("10.1.2.3:5555", nil))

	_, err = ParseTrustedProxies("10.0.0.0/8,proxy.lan")
	assert.Error(t, err)
}
