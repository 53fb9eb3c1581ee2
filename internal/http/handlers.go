package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// transactionView adds presentation data to a stored transaction.
type transactionView struct {
	core.Transaction
	Display core.CategoryDisplay `json:"display"`
}

func viewOf(tx core.Transaction) transactionView {
	return transactionView{Transaction: tx, Display: tx.Category.Display()}
}

type categoryView struct {
	Code string `json:"code"`
	core.CategoryDisplay
	Income bool `json:"income"`
}

// fail writes the response for err and logs it when the fault is ours.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ServiceError(err)
	if resp.statusCode >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).Error("Request failed",
			applog.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	}
	resp.Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

// handleReady checks that storage answers a trivial query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Store().Sum(r.Context(), storage.Filter{}); err != nil {
		applog.FromContext(r.Context()).Warn("Readiness check failed", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
		return
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories := core.Categories()
	out := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryView{
			Code:            c.String(),
			CategoryDisplay: c.Display(),
			Income:          c.IsIncome(),
		})
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseListFilter(r.URL.Query(), s.location())
	if err != nil {
		s.fail(w, r, "list", err)
		return
	}

	txs, err := s.svc.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, "list", err)
		return
	}

	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, viewOf(tx))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	draft, err := ParseDraft(NewRequestBodyParser(r), s.location())
	if err != nil {
		s.fail(w, r, "create", err)
		return
	}
	if draft.Timestamp.IsZero() {
		draft.Timestamp = s.engine.Now()
	}

	tx, err := s.svc.Create(r.Context(), draft)
	if err != nil {
		s.fail(w, r, "create", err)
		return
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID).
		JSON(viewOf(tx)).
		Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "get", err)
		return
	}
	NewJSONResponse().JSON(viewOf(tx)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	current, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "update", err)
		return
	}

	updated, err := ApplyUpdate(NewRequestBodyParser(r), current, s.location())
	if err != nil {
		s.fail(w, r, "update", err)
		return
	}
	if err := s.svc.Update(r.Context(), updated); err != nil {
		s.fail(w, r, "update", err)
		return
	}

	tx, err := s.svc.Get(r.Context(), updated.ID)
	if err != nil {
		s.fail(w, r, "update", err)
		return
	}
	NewJSONResponse().JSON(viewOf(tx)).Write(w)
}

// handleDeleteTransaction answers 204 whether or not the ID existed.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, "delete", err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Summary(r.Context())
	if err != nil {
		s.fail(w, r, "summary", err)
		return
	}
	NewJSONResponse().JSON(summary).Write(w)
}

// handleSummaryStream sends the week summary as server-sent events: one
// "summary" event per change, comment heartbeats while idle. The
// subscription ends with the request.
func (s *Server) handleSummaryStream(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := s.engine.WatchSummary(r.Context())
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error("Streaming not supported", "error", err)
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var id int
	for {
		select {
		case summary, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					logger.Error("Summary stream ended", "error", err)
					fmt.Fprintf(w, "event: error\ndata: {\"error\":%q}\n\n", "summary unavailable")
					_ = rc.Flush()
				}
				return
			}
			data, err := json.Marshal(summary)
			if err != nil {
				logger.Error("Failed to encode summary", "error", err)
				return
			}
			id++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: summary\ndata: %s\n\n", id, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
