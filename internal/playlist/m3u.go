// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package playlist renders the available channels as an M3U playlist.
package playlist

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Item is one playlist entry.
type Item struct {
	Name    string
	TvgID   string
	TvgChNo int
	TvgLogo string
	Group   string
	URL     string
}

var attrReplacer = strings.NewReplacer(`"`, "'", "\r", " ", "\n", " ")

var lineReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// WriteM3U writes an extended M3U document. Attribute values cannot break out
// of their quotes and no field can start a new line.
func WriteM3U(w io.Writer, items []Item) error {
	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	for _, it := range items {
		fmt.Fprintf(buf,
			`#EXTINF:-1 tvg-chno="%d" tvg-id="%s" tvg-logo="%s" group-title="%s",%s`+"\n",
			it.TvgChNo,
			attrReplacer.Replace(it.TvgID),
			attrReplacer.Replace(it.TvgLogo),
			attrReplacer.Replace(it.Group),
			lineReplacer.Replace(it.Name),
		)
		buf.WriteString(lineReplacer.Replace(it.URL) + "\n")
	}
	_, err := io.Copy(w, buf)
	return err
}
