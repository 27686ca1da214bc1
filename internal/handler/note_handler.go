package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/securenotes/internal/model"
	"github.com/hitoshi/securenotes/internal/note"
)

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Note, error)
	Create(ctx context.Context, userID string, input note.CreateInput) (*model.Note, error)
	Delete(ctx context.Context, userID, noteID string) error
}

// NoteHandler はノート管理のHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// createNoteRequest はノート作成リクエストのボディ。
// 所有者はボディから受け取らず、認証済みユーザーで確定する。
type createNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// noteResponse はノートのAPIレスポンス。
type noteResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// deleteNoteResponse はノート削除のAPIレスポンス。
type deleteNoteResponse struct {
	Message string `json:"message"`
	NoteID  string `json:"noteId"`
}

// ListNotes は認証済みユーザーのノートを新しい順に返す。
// GET /api/notes
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	notes, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		resp = append(resp, toNoteResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateNote はノートを作成する。
// POST /api/notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createNoteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	n, err := h.service.Create(r.Context(), userID, note.CreateInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNoteResponse(n))
}

// DeleteNote は認証済みユーザーが所有するノートを削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	noteID := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), userID, noteID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteNoteResponse{
		Message: "Note deleted successfully",
		NoteID:  noteID,
	})
}

func toNoteResponse(n *model.Note) noteResponse {
	return noteResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}
