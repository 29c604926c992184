package web

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/tabwork/internal/logging"
	"github.com/JonMunkholm/tabwork/internal/web/templates"
)

// handleIndex serves the upload form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, templates.IndexPage())
}

// handleConfigure shows the parsing options form for a session's files.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)
	sf, err := s.service.SessionFiles(r.Context(), session)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.render(w, r, templates.ConfigurePage(sf))
}

// handleDisplay shows every working table of a session.
func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)
	d, err := s.service.Tables(r.Context(), session)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.render(w, r, templates.DisplayPage(d))
}

// render buffers the page so a template error can still become an error
// response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func loggerFor(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}
