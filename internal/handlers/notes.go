package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/field-notes/apiserver/internal/logger"
	"github.com/field-notes/apiserver/internal/services"
	"github.com/field-notes/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// NoteManager is the note lifecycle used by the handlers.
type NoteManager interface {
	ListNotes(ctx context.Context) ([]types.Note, error)
	GetNote(ctx context.Context, id string) (types.Note, error)
	CreateNote(ctx context.Context, input types.NoteInput) (types.Note, error)
	UpdateNote(ctx context.Context, id string, update types.NoteUpdate) (types.Note, error)
	DeleteNote(ctx context.Context, id string) error
	NoteTakers() []string
}

// NoteHandler provides HTTP handlers for notes.
type NoteHandler struct {
	notes NoteManager
}

func NewNoteHandler(notes NoteManager) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// NoteRouter registers note routes. Access control is applied by the caller.
func NoteRouter(r chi.Router, h *NoteHandler) {
	r.Get("/", h.ListNotes)
	r.Post("/", h.CreateNote)
	r.Route("/{noteID}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Put("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
	})
}

// ListNoteTakers returns the names accepted in the noteTaker field.
func (h *NoteHandler) ListNoteTakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"noteTakers": h.notes.NoteTakers()})
}

func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.ListNotes(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to list notes")
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.GetNote(r.Context(), chi.URLParam(r, "noteID"))
	if err != nil {
		writeServiceError(w, r, err, "failed to load note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var input types.NoteInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := h.notes.CreateNote(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err, "failed to create note")
		return
	}
	logger.FromRequest(r).Info().Str("note_id", note.ID).Msg("note created")
	writeJSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var update types.NoteUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	note, err := h.notes.UpdateNote(r.Context(), chi.URLParam(r, "noteID"), update)
	if err != nil {
		writeServiceError(w, r, err, "failed to update note")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "noteID")
	if err := h.notes.DeleteNote(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "failed to delete note")
		return
	}
	logger.FromRequest(r).Info().Str("note_id", id).Msg("note deleted")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeServiceError maps service errors to responses. Unexpected errors are
// logged in full and answered with fallback.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", FieldErrors: verr.Fields})
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "Note not found")
	case errors.Is(err, services.ErrConflict):
		writeError(w, http.StatusConflict, "Notes were modified concurrently, retry the request")
	default:
		logger.FromRequest(r).Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
