package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/tabwork/internal/core"
	"github.com/JonMunkholm/tabwork/internal/dialect"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// handleUpload accepts one or two files in the multipart fields file1 and
// file2 and starts a new session. Browsers are redirected to the configure
// page; API clients receive the session files as JSON.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := int64(len(core.Slots))*s.cfg.Upload.MaxFileSize + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if !errors.As(err, &tooBig) {
			err = fmt.Errorf("%w: invalid multipart form: %v", core.ErrBadRequest, err)
		}
		fail(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var files []core.UploadFile
	for _, slot := range core.Slots {
		f, hdr, err := r.FormFile(slot)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			fail(w, r, fmt.Errorf("%w: %s: %v", core.ErrBadRequest, slot, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			fail(w, r, fmt.Errorf("read %s: %w", slot, err))
			return
		}
		files = append(files, core.UploadFile{Slot: slot, Name: hdr.Filename, Data: data})
	}

	sf, err := s.service.Upload(r.Context(), files)
	if err != nil {
		fail(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusCreated, sf)
		return
	}
	http.Redirect(w, r, "/configure/"+url.PathEscape(sf.Session), http.StatusSeeOther)
}

// handleSessionFiles lists the raw files of a session and the default
// parsing options.
func (s *Server) handleSessionFiles(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)
	sf, err := s.service.SessionFiles(r.Context(), session)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sf)
}

type previewRequest struct {
	Session string          `json:"session"`
	Slot    string          `json:"slot"`
	Options dialect.Options `json:"options"`
}

type previewResponse struct {
	Slot string `json:"slot"`
	table.Wire
	Warnings []dialect.Warning `json:"warnings"`
}

// handlePreview parses the first rows of a raw file with the given options.
// Options left out of the request keep their defaults.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req := previewRequest{Slot: core.SlotA, Options: dialect.DefaultOptions()}
	if err := s.decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}

	p, err := s.service.Preview(r.Context(), req.Session, req.Slot, req.Options)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Slot:     p.Slot,
		Wire:     p.Table.Wire(),
		Warnings: nonNil(p.Warnings),
	})
}

type importRequest struct {
	Options map[string]json.RawMessage `json:"options"`
}

// handleImport runs the final import. Each slot's options are merged over
// the defaults; slots without options use the defaults.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)

	var req importRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	opts := make(map[string]dialect.Options, len(req.Options))
	for slot, raw := range req.Options {
		o := dialect.DefaultOptions()
		if err := json.Unmarshal(raw, &o); err != nil {
			fail(w, r, fmt.Errorf("%w: options for %s: %v", core.ErrBadRequest, slot, err))
			return
		}
		opts[slot] = o
	}

	report, err := s.service.Import(r.Context(), session, opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleImportForm is the configure page's form target. Fields are named
// "<slot>.<option>"; an unchecked has_header box means no header.
func (s *Server) handleImportForm(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)
	if err := r.ParseForm(); err != nil {
		fail(w, r, fmt.Errorf("%w: %v", core.ErrBadRequest, err))
		return
	}

	opts := make(map[string]dialect.Options)
	for _, slot := range core.Slots {
		if _, ok := r.PostForm[slot+".delimiter"]; !ok {
			continue
		}
		o, err := formOptions(r, slot)
		if err != nil {
			fail(w, r, err)
			return
		}
		opts[slot] = o
	}

	if _, err := s.service.Import(r.Context(), session, opts); err != nil {
		fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/display/"+url.PathEscape(session), http.StatusSeeOther)
}

func formOptions(r *http.Request, slot string) (dialect.Options, error) {
	o := dialect.DefaultOptions()
	field := func(name string) string { return r.PostForm.Get(slot + "." + name) }

	if v := field("encoding"); v != "" {
		o.Encoding = v
	}
	o.Delimiter = field("delimiter")
	o.QuoteChar = field("quotechar")
	o.HasHeader = field("has_header") == "true"
	if v := field("skip_rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, fmt.Errorf("%w: %s.skip_rows: %v", core.ErrBadRequest, slot, err)
		}
		o.SkipRows = n
	}
	return o, nil
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	err := json.NewDecoder(r.Body).Decode(v)
	var tooBig *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &tooBig):
		return err
	default:
		return fmt.Errorf("%w: %v", core.ErrBadRequest, err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
