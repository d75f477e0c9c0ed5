// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteM3UTable(t *testing.T) {
	tests := []struct {
		name   string
		items  []Item
		expect []string
	}{
		{
			name: "basic with logo and channel number",
			items: []Item{{
				Name: "Asianet", TvgID: "asianet", Group: "Malayalam", TvgLogo: "https://logo.example/asianet.png",
				URL: "http://relay:5000/stream/asianet", TvgChNo: 1,
			}},
			expect: []string{
				"#EXTM3U",
				`tvg-id="asianet"`,
				`group-title="Malayalam"`,
				`tvg-logo="https://logo.example/asianet.png"`,
				`tvg-chno="1"`,
				",Asianet",
				"http://relay:5000/stream/asianet",
			},
		},
		{
			name: "missing logo",
			items: []Item{{
				Name: "Kairali", TvgID: "kairali", URL: "http://relay/stream/kairali", TvgChNo: 2,
			}},
			expect: []string{`tvg-logo=""`, `tvg-chno="2"`},
		},
		{
			name: "quotes and newlines cannot break the format",
			items: []Item{{
				Name: "Evil\n#EXTINF:-1,Injected", TvgID: `x" tvg-logo="y`, URL: "http://relay/stream/x\nhttp://evil", TvgChNo: 3,
			}},
			expect: []string{`tvg-id="x' tvg-logo='y"`, ",Evil #EXTINF:-1,Injected", "http://relay/stream/x http://evil"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var b strings.Builder
			require.NoError(t, WriteM3U(&b, tc.items))
			out := b.String()
			for _, want := range tc.expect {
				assert.Contains(t, out, want)
			}
			assert.Equal(t, len(tc.items), strings.Count(out, "#EXTINF:"))
			assert.Equal(t, 1+2*len(tc.items), strings.Count(out, "\n"))
		})
	}
}

func TestWriteM3U_Empty(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WriteM3U(&b, nil))
	assert.Equal(t, "#EXTM3U\n", b.String())
}
