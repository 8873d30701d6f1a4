package leads

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Nick077mp/whatsapp-crm-completo/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// CreateLead handles POST /api/leads requests
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrDuplicateLead) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("failed to create lead", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("lead created", "id", lead.ID, "contact_id", lead.ContactID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(lead)
}

// GetLead handles GET /api/leads/{leadID} requests
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get lead", "error", err, "id", id)
		http.Error(w, "failed to get lead", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lead)
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads []*Lead `json:"leads"`
	Count int     `json:"count"`
}

// ListLeads handles GET /api/leads requests, optionally filtered by
// status or contact id.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	var (
		leads []*Lead
		err   error
	)

	switch {
	case r.URL.Query().Get("contact_id") != "":
		contactID, parseErr := uuid.Parse(r.URL.Query().Get("contact_id"))
		if parseErr != nil {
			http.Error(w, "invalid contact_id", http.StatusBadRequest)
			return
		}
		leads, err = h.repo.ListByContact(r.Context(), contactID)
	case r.URL.Query().Get("status") != "":
		leads, err = h.repo.ListByStatus(r.Context(), Status(r.URL.Query().Get("status")))
	default:
		leads, err = h.repo.ListByStatus(r.Context(), StatusNew)
	}
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	response := ListLeadsResponse{Leads: leads, Count: len(leads)}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// UpdateLeadRequest is the request body for updating a lead.
type UpdateLeadRequest struct {
	Status        *Status `json:"status"`
	AssignedAgent *string `json:"assigned_agent"`
	Notes         *string `json:"notes"`
}

// UpdateLead handles PATCH /api/leads/{leadID} requests
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}

	var req UpdateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get lead", "error", err, "id", id)
		http.Error(w, "failed to get lead", http.StatusInternalServerError)
		return
	}

	if req.Status != nil {
		switch *req.Status {
		case StatusNew, StatusInProgress, StatusNegotiation, StatusClosedWon, StatusClosedLost:
			lead.Status = *req.Status
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}
	if req.AssignedAgent != nil {
		lead.AssignedAgent = *req.AssignedAgent
	}
	if req.Notes != nil {
		lead.Notes = *req.Notes
	}

	if err := h.repo.Update(r.Context(), lead); err != nil {
		h.logger.Error("failed to update lead", "error", err, "id", id)
		http.Error(w, "failed to update lead", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lead)
}
