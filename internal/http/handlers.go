package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"monity/internal/core"
	"monity/internal/ledger"
	applog "monity/internal/log"
	"monity/internal/services"
)

type listResponse struct {
	Records []recordJSON `json:"records"`
	Total   string       `json:"total"`
}

type candidateJSON struct {
	Index  int        `json:"index"`
	Line   string     `json:"line"`
	Record recordJSON `json:"record"`
}

type mutationRequest struct {
	Keyword string      `json:"keyword"`
	Select  int         `json:"select"`
	Record  *recordJSON `json:"record,omitempty"`
}

type mutationResponse struct {
	Affected int `json:"affected"`
	Lines    int `json:"lines"`
}

// ledgerRoutes serves one book. toJSON and fromJSON convert between the
// book's record type and the shared wire form.
type ledgerRoutes[R core.Entry] struct {
	book     *services.Book[R]
	toJSON   func(R) recordJSON
	fromJSON func(recordJSON) (R, error)
}

func mountLedger[R core.Entry](r chi.Router, book *services.Book[R], toJSON func(R) recordJSON, fromJSON func(recordJSON) (R, error)) {
	lr := &ledgerRoutes[R]{book: book, toJSON: toJSON, fromJSON: fromJSON}
	r.Get("/", lr.list)
	r.Post("/", lr.add)
	r.Get("/search", lr.search)
	r.Get("/candidates", lr.candidates)
	r.Post("/delete", lr.delete)
	r.Post("/edit", lr.edit)
}

func (lr *ledgerRoutes[R]) records(rs []R) []recordJSON {
	out := make([]recordJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, lr.toJSON(r))
	}
	return out
}

// list returns every record, or those matching ?category= or ?date= together
// with their total.
func (lr *ledgerRoutes[R]) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := sanitizeInput(r.URL.Query().Get("category"))
	date := sanitizeInput(r.URL.Query().Get("date"))

	var (
		res ledger.Filtered[R]
		err error
	)
	switch {
	case category != "" && date != "":
		writeError(w, http.StatusBadRequest, "use either category or date, not both")
		return
	case category != "":
		res, err = lr.book.ByCategory(ctx, category)
	case date != "":
		res, err = lr.book.ByDate(ctx, date)
	default:
		var all []R
		all, err = lr.book.List(ctx)
		res.Records = all
		for _, rec := range all {
			res.Total = res.Total.Add(rec.Value())
		}
	}
	if err != nil {
		lr.fail(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Records: lr.records(res.Records), Total: res.Total.String()})
}

func (lr *ledgerRoutes[R]) add(w http.ResponseWriter, r *http.Request) {
	var body recordJSON
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := lr.fromJSON(body)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err := lr.book.Add(r.Context(), rec); err != nil {
		lr.fail(w, r, applog.OpAppend, err)
		return
	}
	writeJSON(w, http.StatusCreated, lr.toJSON(rec))
}

func (lr *ledgerRoutes[R]) search(w http.ResponseWriter, r *http.Request) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	found, err := lr.book.Search(r.Context(), q)
	if err != nil {
		lr.fail(w, r, applog.OpSearch, err)
		return
	}
	writeJSON(w, http.StatusOK, lr.records(found))
}

func (lr *ledgerRoutes[R]) candidates(w http.ResponseWriter, r *http.Request) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	cands, err := lr.book.Candidates(r.Context(), q)
	if err != nil {
		lr.fail(w, r, applog.OpSearch, err)
		return
	}
	out := make([]candidateJSON, 0, len(cands))
	for _, c := range cands {
		out = append(out, candidateJSON{Index: c.Index, Line: c.Line, Record: lr.toJSON(c.Record)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (lr *ledgerRoutes[R]) delete(w http.ResponseWriter, r *http.Request) {
	var body mutationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyword := sanitizeInput(body.Keyword)
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "missing keyword")
		return
	}
	res, err := lr.book.DeleteMatching(r.Context(), keyword, body.Select)
	if err != nil {
		lr.fail(w, r, applog.OpDelete, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Affected: res.Affected, Lines: res.Lines})
}

func (lr *ledgerRoutes[R]) edit(w http.ResponseWriter, r *http.Request) {
	var body mutationRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	keyword := sanitizeInput(body.Keyword)
	if keyword == "" || body.Record == nil {
		writeError(w, http.StatusBadRequest, "keyword and record are required")
		return
	}
	replacement, err := lr.fromJSON(*body.Record)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	res, err := lr.book.EditMatching(r.Context(), keyword, body.Select, replacement)
	if err != nil {
		lr.fail(w, r, applog.OpEdit, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{Affected: res.Affected, Lines: res.Lines})
}

func (lr *ledgerRoutes[R]) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).Op(r.Context(), op, err, applog.FieldLedger, lr.book.Kind().String())
	}
	writeError(w, status, err.Error())
}

// handleSummary reports the balance of ?month=MM/YY.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		writeError(w, http.StatusBadRequest, "missing month parameter")
		return
	}
	b, err := s.svc.Balance(r.Context(), core.MonthKey(month))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balanceToJSON(b))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.History(r.Context())
	if err != nil {
		s.logger.Op(r.Context(), applog.OpHistory, err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	out := make([]balanceJSON, 0, len(report))
	for _, b := range report {
		out = append(out, balanceToJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}
