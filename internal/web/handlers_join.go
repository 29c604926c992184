package web

import (
	"net/http"

	"github.com/JonMunkholm/tabwork/internal/core"
	"github.com/JonMunkholm/tabwork/internal/join"
	"github.com/JonMunkholm/tabwork/internal/store"
	"github.com/JonMunkholm/tabwork/internal/table"
)

// joinRequest names the two tables by their name within the session.
// They default to the two uploaded files.
type joinRequest struct {
	TableA string `json:"table_a"`
	TableB string `json:"table_b"`
	join.Spec
	Force bool `json:"force"`
}

// joinResponse carries one of the three statuses: success with the new
// table, confirm with the predicted size, or error with a message.
type joinResponse struct {
	Status        join.Status `json:"status"`
	Message       string      `json:"message,omitempty"`
	PredictedRows int64       `json:"predicted_rows,omitempty"`
	Key           string      `json:"key,omitempty"`
	Name          string      `json:"name,omitempty"`
	Code          string      `json:"code,omitempty"`
	*table.Wire
}

// handleJoin joins or compares two tables of the session. Errors are
// reported in the status shape instead of the generic error body.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	session, r := sessionParam(r)

	req := joinRequest{
		TableA: core.SlotA,
		TableB: core.SlotB,
		Spec:   join.Spec{Mode: join.Inner},
	}
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.joinError(w, r, err)
		return
	}

	out, err := s.service.Join(r.Context(), core.JoinRequest{
		TableA: store.Key(session, req.TableA),
		TableB: store.Key(session, req.TableB),
		Spec:   req.Spec,
		Force:  req.Force,
	})
	if err != nil {
		s.joinError(w, r, err)
		return
	}

	resp := joinResponse{
		Status:        out.Status,
		Message:       out.Message,
		PredictedRows: out.PredictedRows,
	}
	if out.Status == join.StatusSuccess {
		_, name, _ := store.SplitKey(out.Key)
		wire := out.Table.Wire()
		resp.Key = out.Key
		resp.Name = name
		resp.Wire = &wire
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) joinError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)
	logger := loggerFor(r)
	if status >= http.StatusInternalServerError {
		logger.Error("join failed", "error", err, "code", msg.Code)
	} else {
		logger.Warn("join rejected", "error", err, "code", msg.Code)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, joinResponse{
		Status:  join.StatusError,
		Message: msg.Message,
		Code:    msg.Code,
	})
}
