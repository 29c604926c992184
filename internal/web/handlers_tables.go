package web

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabwork/internal/core"
	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/mutate"
	"github.com/JonMunkholm/tabwork/internal/table"
)

type tableResponse struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	table.Wire
	Warnings []dialect.Warning `json:"warnings,omitempty"`
}

type tablesResponse struct {
	Session string            `json:"session"`
	Tables  []tableResponse   `json:"tables"`
	Failed  []core.FileReport `json:"failed"`
}

// handleTables returns every working table of the session with the
// warnings from its import.
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)
	d, err := s.service.Tables(r.Context(), session)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := tablesResponse{
		Session: d.Session,
		Tables:  make([]tableResponse, 0, len(d.Tables)),
		Failed:  nonNil(d.Failed),
	}
	for _, nt := range d.Tables {
		resp.Tables = append(resp.Tables, tableResponse{
			Key:      nt.Key,
			Name:     nt.Name,
			Label:    nt.Label,
			Wire:     nt.Table.Wire(),
			Warnings: nt.Warnings,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTable returns one working table.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	key, r := tableKey(r)
	t, err := s.service.Table(r.Context(), key)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse{
		Key:  key,
		Name: chi.URLParam(r, "name"),
		Wire: t.Wire(),
	})
}

type changesResponse struct {
	table.Wire
	Warnings []mutate.Warning `json:"warnings"`
}

// handleChanges applies a JSON change batch and returns the saved table.
// Skipped operations come back as warnings; the rest of the batch applies.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	key, r := tableKey(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize))
	if err != nil {
		fail(w, r, fmt.Errorf("read change batch: %w", err))
		return
	}
	batch, err := core.DecodeChanges(body)
	if err != nil {
		fail(w, r, err)
		return
	}

	res, err := s.service.ApplyChanges(r.Context(), key, batch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changesResponse{
		Wire:     res.Table.Wire(),
		Warnings: nonNil(res.Warnings),
	})
}

// handleSummary returns the chart data for ?column=.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	key, r := tableKey(r)
	sum, err := s.service.Summarize(r.Context(), key, r.URL.Query().Get("column"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleDownload sends the table as a CSV attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key, r := tableKey(r)

	var buf bytes.Buffer
	if err := s.service.Export(r.Context(), key, &buf); err != nil {
		fail(w, r, err)
		return
	}

	filename := chi.URLParam(r, "name") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleDeleteTable removes one working table.
func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	key, r := tableKey(r)
	if err := s.service.DeleteTable(r.Context(), key); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteSession removes everything stored for a session.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)
	if err := s.service.DeleteSession(r.Context(), session); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
