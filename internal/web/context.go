package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tabwork/internal/logging"
	"github.com/JonMunkholm/tabwork/internal/store"
)

// sessionParam returns the {session} URL parameter and a request context
// whose loggers carry it.
func sessionParam(r *http.Request) (string, *http.Request) {
	session := chi.URLParam(r, "session")
	return session, r.WithContext(logging.WithSession(r.Context(), session))
}

// tableKey builds the store key from the {session} and {name} parameters.
func tableKey(r *http.Request) (string, *http.Request) {
	session, r := sessionParam(r)
	return store.Key(session, chi.URLParam(r, "name")), r
}
