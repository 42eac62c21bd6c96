package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/crmnexus/internal/fileserver"
	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/middleware"
	"github.com/crmnexus/internal/model"
	"github.com/crmnexus/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DocumentHandler struct {
	docRepo       *repository.DocumentRepository
	fileSvc       *fileserver.Service
	maxUploadSize int64
}

func NewDocumentHandler(docRepo *repository.DocumentRepository, fileSvc *fileserver.Service, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{docRepo: docRepo, fileSvc: fileSvc, maxUploadSize: maxUploadSize}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.docRepo.List(r.Context(), queryInt(r, "limit", 200), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list documents failed")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.docRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Upload принимает multipart/form-data с полем "file" и создаёт запись
// документа. Содержимое проверяется по сигнатуре до сохранения.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	stored, err := h.fileSvc.Store(r.Context(), file, header)
	if err != nil {
		switch {
		case errors.Is(err, fileserver.ErrBlockedType):
			writeError(w, http.StatusBadRequest, "file type not allowed")
		case errors.Is(err, fileserver.ErrMagicMismatch):
			writeError(w, http.StatusBadRequest, "file content does not match type")
		default:
			if r.Context().Err() != nil {
				return
			}
			logger.Errorf("document upload: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to save file")
		}
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = stored.DisplayName
	}
	d := &model.Document{
		ID:        uuid.New().String(),
		Name:      name,
		FileType:  strings.TrimPrefix(strings.ToLower(filepath.Ext(stored.StoredName)), "."),
		FileSize:  stored.Size,
		URL:       "/api/documents/files/" + stored.StoredName,
		CreatedBy: middleware.GetUserID(r.Context()),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.docRepo.Create(r.Context(), d); err != nil {
		if rmErr := h.fileSvc.Remove(stored.StoredName); rmErr != nil {
			logger.Errorf("document upload rollback: %v", rmErr)
		}
		writeError(w, http.StatusInternalServerError, "failed to create document")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// Download отдаёт содержимое файла документа по хранимому имени.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	storedName := filepath.Base(chi.URLParam(r, "filename"))
	f, err := h.fileSvc.Open(storedName)
	if err != nil {
		if errors.Is(err, fileserver.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", h.fileSvc.ContentType(storedName))
	if name := r.URL.Query().Get("name"); name != "" {
		w.Header().Set("Content-Disposition", fileserver.ContentDisposition(name))
	}
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

type RenameDocumentRequest struct {
	Name string `json:"name"`
}

func (h *DocumentHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RenameDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if err := h.docRepo.Rename(r.Context(), id, strings.TrimSpace(req.Name)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to rename document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.docRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}
	if err := h.docRepo.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	// Запись удалена — файл подчищаем по возможности, ошибка не фатальна.
	if storedName := filepath.Base(d.URL); storedName != "" {
		if err := h.fileSvc.Remove(storedName); err != nil {
			logger.Errorf("document delete: remove file %s: %v", storedName, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
