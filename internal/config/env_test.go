// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("TVRELAY_TEST_STR", "value")
	t.Setenv("TVRELAY_TEST_EMPTY", "")
	t.Setenv("TVRELAY_TEST_INT", " 42 ")
	t.Setenv("TVRELAY_TEST_BAD_INT", "4x2")
	t.Setenv("TVRELAY_TEST_DUR", "90s")
	t.Setenv("TVRELAY_TEST_BOOL", "No")
	t.Setenv("TVRELAY_TEST_FLOAT", "0.25")
	t.Setenv("TVRELAY_TEST_LIST", "a, ,b")

	assert.Equal(t, "value", ParseString("TVRELAY_TEST_STR", "d"))
	assert.Equal(t, "d", ParseString("TVRELAY_TEST_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("TVRELAY_TEST_UNSET", "d"))
	assert.Equal(t, 42, ParseInt("TVRELAY_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("TVRELAY_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, ParseDuration("TVRELAY_TEST_DUR", time.Second))
	assert.False(t, ParseBool("TVRELAY_TEST_BOOL", true))
	assert.InDelta(t, 0.25, ParseFloat("TVRELAY_TEST_FLOAT", 1), 1e-9)
	assert.Equal(t, []string{"a", "b"}, ParseList("TVRELAY_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, ParseList("TVRELAY_TEST_UNSET", []string{"x"}))
}
