// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/config"
	"github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/playlist"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}

type channelView struct {
	ID   string
	Name string
	Logo string
}

func viewOf(ch catalog.Channel) channelView {
	v := channelView{ID: ch.ID, Name: ch.Name, Logo: ch.Logo}
	if v.Name == "" {
		v.Name = catalog.DisplayName(ch.ID)
	}
	if v.Logo == "" && ch.Source.Kind == catalog.KindResolvable {
		v.Logo = config.DefaultResolvableLogo
	}
	return v
}

type homePage struct {
	Stable     []channelView
	Resolvable []channelView
}

type watchPage struct {
	Channel channelView
	Prev    channelView
	Next    channelView
}

// neighbours returns the channels before and after index i, wrapping around.
func neighbours(list []catalog.Channel, i int) (prev, next catalog.Channel) {
	n := len(list)
	return list[(i-1+n)%n], list[(i+1)%n]
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	var page homePage
	for _, ch := range playlist.Available(s.catalog, s.cache) {
		if ch.Source.Kind == catalog.KindStable {
			page.Stable = append(page.Stable, viewOf(ch))
		} else {
			page.Resolvable = append(page.Resolvable, viewOf(ch))
		}
	}
	s.render(w, r, "home.html", page)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "channel")
	list := playlist.Available(s.catalog, s.cache)
	for i, ch := range list {
		if ch.ID != id {
			continue
		}
		prev, next := neighbours(list, i)
		s.render(w, r, "watch.html", watchPage{
			Channel: viewOf(ch),
			Prev:    viewOf(prev),
			Next:    viewOf(next),
		})
		return
	}
	http.NotFound(w, r)
}

// render executes into a buffer first so a template error still yields a 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Error().Err(err).
			Str(log.FieldEvent, "page.render_failed").
			Str("template", name).
			Msg("failed to render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
