package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabwork/internal/config"
	"github.com/JonMunkholm/tabwork/internal/core"
	"github.com/JonMunkholm/tabwork/internal/store"
)

const (
	peopleCSV = "id;name\n1;Alice\n2;Bob\n2;Bob\n"
	scoresCSV = "id,score\n1,90\n2,85\n3,70\n"
)

// newTestServer builds a server on a file store in a temp dir. env
// overrides the configuration; rate limiting is off unless env enables it.
func newTestServer(t *testing.T, env map[string]string) *Server {
	t.Helper()
	dir := t.TempDir()
	vars := map[string]string{
		"STORAGE_DIR":        filepath.Join(dir, "tables"),
		"UPLOAD_DIR":         filepath.Join(dir, "uploads"),
		"RATE_LIMIT_ENABLED": "false",
	}
	for k, v := range env {
		vars[k] = v
	}
	cfg, err := config.LoadFrom(func(k string) string { return vars[k] })
	require.NoError(t, err)

	tables, err := store.NewFileStore(cfg.Storage.Dir)
	require.NoError(t, err)
	uploads, err := store.NewUploads(cfg.Upload.Dir)
	require.NoError(t, err)
	svc := core.NewService(tables, uploads,
		core.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		core.Options{
			MaxFileSize:       cfg.Upload.MaxFileSize,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
			JoinMaxRows:       cfg.Join.MaxRows,
		})

	s := NewServer(svc, cfg)
	t.Cleanup(func() {
		for _, rl := range s.limiters {
			rl.stop()
		}
	})
	return s
}

func (s *Server) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for slot, content := range files {
		name := "people.csv"
		if slot == core.SlotB {
			name = "scores.csv"
		}
		fw, err := mw.CreateFormFile(slot, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// importSession uploads both files through the API and imports them.
func (s *Server) importSession(t *testing.T) string {
	t.Helper()
	rec := s.do(t, uploadRequest(t, "/api/upload", map[string]string{
		core.SlotA: peopleCSV,
		core.SlotB: scoresCSV,
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sf := decode[core.SessionFiles](t, rec)
	require.Len(t, sf.Files, 2)

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+sf.Session+"/import",
		`{"options":{"file2":{"delimiter":","}}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[core.ImportReport](t, rec)
	require.Equal(t, 2, report.Imported())
	return sf.Session
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestPreviewAPI(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, uploadRequest(t, "/api/upload", map[string]string{core.SlotB: scoresCSV}))
	require.Equal(t, http.StatusCreated, rec.Code)
	sf := decode[core.SessionFiles](t, rec)

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/preview",
		`{"session":"`+sf.Session+`","slot":"file2","options":{"delimiter":","}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := decode[previewResponse](t, rec)
	assert.Equal(t, core.SlotB, p.Slot)
	assert.Equal(t, []string{"id", "score"}, p.Headers)
	assert.Len(t, p.Rows, 3)
	assert.NotNil(t, p.Warnings)

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/preview", `{"session":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ003", decode[ErrorResponse](t, rec).Code)
}

func TestTablesAPI(t *testing.T) {
	s := newTestServer(t, nil)
	session := s.importSession(t)
	base := "/api/sessions/" + session

	rec := s.do(t, httptest.NewRequest(http.MethodGet, base+"/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decode[tablesResponse](t, rec)
	require.Len(t, tables.Tables, 2)
	assert.Equal(t, "people.csv", tables.Tables[0].Label)
	assert.Equal(t, core.SlotB, tables.Tables[1].Name)
	assert.Len(t, tables.Tables[0].Rows, 2, "duplicate row removed")
	assert.Empty(t, tables.Failed)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, base+"/tables/file1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[tableResponse](t, rec)
	assert.Equal(t, store.Key(session, core.SlotA), one.Key)
}

func TestChangesAPI(t *testing.T) {
	s := newTestServer(t, nil)
	session := s.importSession(t)
	path := "/api/sessions/" + session + "/tables/file1/changes"

	rec := s.do(t, jsonRequest(http.MethodPost, path,
		`[{"type":"edit","row":0,"column":"name","value":"Alicia"},{"type":"delete_column","name":"missing"}]`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[map[string]any](t, rec)
	rows := res["rows"].([]any)
	assert.Equal(t, "Alicia", rows[0].([]any)[1])
	assert.Len(t, res["warnings"], 1)

	rec = s.do(t, jsonRequest(http.MethodPost, path, `[{"type":"explode"}]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CHG001", decode[ErrorResponse](t, rec).Code)
}

func TestSummaryAndDownload(t *testing.T) {
	s := newTestServer(t, nil)
	session := s.importSession(t)
	base := "/api/sessions/" + session + "/tables/file2"

	rec := s.do(t, httptest.NewRequest(http.MethodGet, base+"/summary?column=score", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[map[string]any](t, rec)
	assert.Len(t, sum["labels"], 3)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, base+"/summary?column=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "COL001", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, base+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=file2.csv`)
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "id,score"))
}

func TestJoinAPI(t *testing.T) {
	s := newTestServer(t, nil)
	session := s.importSession(t)
	path := "/api/sessions/" + session + "/join"

	rec := s.do(t, jsonRequest(http.MethodPost, path,
		`{"left_column":"id","right_column":"id","mode":"inner"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "success", res["status"])
	assert.Len(t, res["rows"], 2)

	// The join result is listed after the imported files.
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/"+session+"/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decode[tablesResponse](t, rec)
	require.Len(t, tables.Tables, 3)
	assert.Equal(t, res["name"], tables.Tables[2].Name)
	assert.True(t, strings.HasPrefix(tables.Tables[2].Label, "Joined table "))

	rec = s.do(t, jsonRequest(http.MethodPost, path,
		`{"left_column":"id","right_column":"id","mode":"cross"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	res = decode[map[string]any](t, rec)
	assert.Equal(t, "error", res["status"])
	assert.Equal(t, "JOIN001", res["code"])
}

func TestJoinNeedsConfirmation(t *testing.T) {
	s := newTestServer(t, map[string]string{"JOIN_MAX_ROWS": "1"})
	session := s.importSession(t)

	rec := s.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+session+"/join",
		`{"left_column":"id","right_column":"id","mode":"outer"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "confirm", res["status"])
	assert.NotContains(t, res, "rows")

	rec = s.do(t, jsonRequest(http.MethodPost, "/api/sessions/"+session+"/join",
		`{"left_column":"id","right_column":"id","mode":"outer","force":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode[map[string]any](t, rec)["status"])
}

func TestDeleteSession(t *testing.T) {
	s := newTestServer(t, nil)
	session := s.importSession(t)
	base := "/api/sessions/" + session

	rec := s.do(t, httptest.NewRequest(http.MethodDelete, base+"/tables/file2", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, httptest.NewRequest(http.MethodGet, base+"/tables/file2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, base, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, httptest.NewRequest(http.MethodGet, base+"/tables", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "STORE001", decode[ErrorResponse](t, rec).Code)
}

func TestPageFlow(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="file1"`)

	rec = s.do(t, uploadRequest(t, "/upload", map[string]string{
		core.SlotA: peopleCSV,
		core.SlotB: scoresCSV,
	}))
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	configure := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(configure, "/configure/"))
	session := strings.TrimPrefix(configure, "/configure/")

	rec = s.do(t, httptest.NewRequest(http.MethodGet, configure, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scores.csv")

	form := url.Values{
		"file1.delimiter":  {";"},
		"file1.quotechar":  {`"`},
		"file1.has_header": {"true"},
		"file2.delimiter":  {","},
		"file2.quotechar":  {`"`},
		"file2.has_header": {"true"},
		"file2.skip_rows":  {"0"},
	}
	req := httptest.NewRequest(http.MethodPost, "/import/"+session, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = s.do(t, req)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/display/"+session, rec.Header().Get("Location"))

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/display/"+session, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "people.csv")
	assert.Contains(t, body, "/api/sessions/"+session+"/tables/file2/download")
}

func TestPageErrors(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/display/no-such-session", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "STORE001")

	req := httptest.NewRequest(http.MethodGet, "/configure/no-such-session", nil)
	req.Header.Set("HX-Request", "true")
	rec = s.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
	assert.Contains(t, rec.Body.String(), "FILE005")
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t, map[string]string{"UPLOAD_MAX_FILE_SIZE": "16"})

	rec := s.do(t, uploadRequest(t, "/api/upload", map[string]string{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE003", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, uploadRequest(t, "/api/upload", map[string]string{core.SlotA: peopleCSV}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decode[ErrorResponse](t, rec).Code)
}

func TestUploadRateLimit(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"RATE_LIMIT_ENABLED": "true",
		"RATE_LIMIT_UPLOAD":  "1",
	})

	rec := s.do(t, uploadRequest(t, "/api/upload", map[string]string{core.SlotA: peopleCSV}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, uploadRequest(t, "/api/upload", map[string]string{core.SlotA: peopleCSV}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)

	// Light routes have their own budget.
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, map[string]string{
		"REQUIRE_API_KEY": "true",
		"API_KEYS":        "secret",
	})

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/sessions/abc/tables", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc/tables", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = s.do(t, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Pages are not behind the key.
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownWaitsForRunningWork(t *testing.T) {
	s := newTestServer(t, nil)
	limiter := s.service.Limiter()
	require.NoError(t, limiter.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- s.Shutdown(context.Background()) }()

	select {
	case err := <-done:
		t.Fatalf("Shutdown returned %v while an import was running", err)
	case <-time.After(100 * time.Millisecond):
	}

	limiter.Release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after the import finished")
	}
}

func TestShutdownGivesUpAtDeadline(t *testing.T) {
	s := newTestServer(t, nil)
	limiter := s.service.Limiter()
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
}
