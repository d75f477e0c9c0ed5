// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/relay"
	"github.com/ManuGH/tvrelay/internal/transcoder"
)

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, s.video)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	s.serveStream(w, r, s.audio)
}

// serveStream opens a relay session and copies it to the client. Nothing is
// written before the first process is running, so open failures still get a
// proper status code.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, base transcoder.Profile) {
	id := chi.URLParam(r, "channel")
	logger := log.WithContext(r.Context(), s.logger).With().
		Str(log.FieldChannel, id).
		Str(log.FieldProfile, base.Name).
		Logger()

	ch, ok := s.catalog.Lookup(id)
	if !ok {
		writeNotFound(w)
		return
	}

	sess, err := s.relay.Open(r.Context(), id, s.profileFor(ch, base))
	if err != nil {
		code := statusForOpenError(err)
		logger.Warn().Err(err).
			Str(log.FieldEvent, "stream.open_failed").
			Int("status", code).
			Msg("stream open failed")
		writeErrorCode(w, code, err.Error())
		return
	}
	defer sess.Close()

	h := w.Header()
	h.Set("Content-Type", base.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Accept-Ranges", "none")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Relay-Session", sess.ID())
	w.WriteHeader(http.StatusOK)

	n, err := relay.Copy(r.Context(), w, sess, s.cfg.Server.WriteTimeout)
	sess.Close()

	evt := logger.Info()
	if err != nil && r.Context().Err() == nil {
		evt = logger.Warn().Err(err)
	}
	evt.
		Str(log.FieldEvent, "stream.done").
		Str(log.FieldSessionID, sess.ID()).
		Int64("bytes", n).
		Int("restarts", sess.Restarts()).
		Str("reason", sess.EndReason()).
		Msg("stream finished")
}
