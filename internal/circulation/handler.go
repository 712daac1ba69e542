// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"libman/internal/httpx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Mount registers the loan routes on r. The member and document subroutes
// live here rather than in their own packages because they answer from
// the loan ledger.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/loans", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Post("/{id}/return", h.handleClose)
		r.Delete("/{id}", h.handlePurge)
	})
	r.Get("/documents/{id}/borrowed", h.handleBorrowed)
	r.Get("/members/{id}/loans", h.handleMemberLoans)
	r.Get("/members/{id}/penalty", h.handlePenalty)
}

type createLoanRequest struct {
	MemberID   uuid.UUID `json:"member_id"`
	DocumentID uuid.UUID `json:"document_id"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.MemberID == uuid.Nil || req.DocumentID == uuid.Nil {
		http.Error(w, "member_id and document_id are required", http.StatusBadRequest)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), req.MemberID, req.DocumentID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CloseLoan(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := h.service.PurgeLoan(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var (
		loans []*Loan
		err   error
	)
	switch filter := r.URL.Query().Get("filter"); filter {
	case "", "open":
		loans, err = h.service.CurrentLoans(r.Context())
	case "late":
		loans, err = h.service.LateLoans(r.Context())
	case "all":
		loans, err = h.service.AllLoans(r.Context())
	default:
		http.Error(w, "filter must be open, late, or all", http.StatusBadRequest)
		return
	}
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleBorrowed(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return
	}

	borrowed, err := h.service.IsDocumentBorrowed(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"borrowed": borrowed})
}

func (h *Handler) handleMemberLoans(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	loans, err := h.service.MemberLoans(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handlePenalty(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid member id", http.StatusBadRequest)
		return
	}

	summary, err := h.service.PenaltySummaryFor(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}
