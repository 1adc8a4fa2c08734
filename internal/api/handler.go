package api

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/RichardoC/rfp-chat/internal/chat"
	"github.com/RichardoC/rfp-chat/internal/config"
	"github.com/RichardoC/rfp-chat/internal/db"
	"github.com/RichardoC/rfp-chat/internal/document"
	"github.com/RichardoC/rfp-chat/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const SessionCookie = "rfpchat_session"

//go:embed templates/*.html
var templatesFS embed.FS

type Handler struct {
	db        *db.Database
	answerer  chat.Answerer
	extractor chat.Extractor
	logger    *zap.Logger

	apiKey    string
	maxUpload int64
	branding  config.Branding
	tmpl      *template.Template

	locks sync.Map // session ID -> *sync.Mutex
}

func NewHandler(database *db.Database, answerer chat.Answerer, extractor chat.Extractor, cfg *config.Config, logger *zap.Logger) (*Handler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Handler{
		db:        database,
		answerer:  answerer,
		extractor: extractor,
		logger:    logger,
		apiKey:    cfg.APIKey,
		maxUpload: cfg.MaxUploadBytes(),
		branding:  cfg.Branding,
		tmpl:      tmpl,
	}, nil
}

// Register installs every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.Index)
	mux.HandleFunc("/api/message", h.HandleMessage)
	mux.HandleFunc("/api/messages", h.GetMessages)
	mux.HandleFunc("/api/document", h.HandleDocument)
	mux.HandleFunc("/api/status", h.GetStatus)
	mux.HandleFunc("/api/session", h.EndSession)
	mux.HandleFunc("/api/health", h.Health)
}

type MessageRequest struct {
	Content string `json:"content"`
	APIKey  string `json:"api_key,omitempty"`
}

type MessageResponse struct {
	Messages []models.Message `json:"messages"`
	Error    string           `json:"error,omitempty"`
}

type DocumentResponse struct {
	Loaded  bool   `json:"loaded"`
	Name    string `json:"name"`
	Pages   int    `json:"pages"`
	Tokens  int    `json:"tokens"`
	Message string `json:"message"`
}

type StatusResponse struct {
	SessionID      string `json:"session_id"`
	DocumentLoaded bool   `json:"document_loaded"`
	DocumentName   string `json:"document_name,omitempty"`
	DocumentPages  int    `json:"document_pages,omitempty"`
	DocumentTokens int    `json:"document_tokens,omitempty"`
	KeyFromSecret  bool   `json:"key_from_secret"`
	Variant        string `json:"variant"`
}

type indexData struct {
	Branding      config.Branding
	KeyFromSecret bool
	Session       *models.Session
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, unlock, err := h.session(w, r)
	if err != nil {
		h.internalError(w, r, "Failed to load session", err)
		return
	}
	defer unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, "index.html", indexData{
		Branding:      h.branding,
		KeyFromSecret: h.apiKey != "",
		Session:       sess,
	}); err != nil {
		h.logger.Error("Failed to render page", zap.Error(err))
	}
}

// HandleMessage runs one chat turn for the caller's session.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "Message content is required", http.StatusBadRequest)
		return
	}

	sess, unlock, err := h.session(w, r)
	if err != nil {
		h.internalError(w, r, "Failed to load session", err)
		return
	}
	defer unlock()

	credential := h.apiKey
	if credential == "" {
		credential = req.APIKey
	}

	start := time.Now()
	turn := chat.Ask(r.Context(), sess, credential, req.Content, h.answerer)

	for i := range turn.Appended {
		if err := h.db.SaveMessage(&turn.Appended[i]); err != nil {
			h.internalError(w, r, "Failed to save message", err)
			return
		}
	}

	fields := []zap.Field{
		zap.String("session", sess.ID),
		zap.Int("appended", len(turn.Appended)),
		zap.Duration("elapsed", time.Since(start)),
	}
	switch {
	case turn.Notice != "":
		h.logger.Info("Turn skipped", append(fields, zap.String("notice", turn.Notice))...)
	case turn.Result != nil && !turn.Result.OK():
		h.logger.Warn("Turn answered with error",
			append(fields, zap.String("reason", string(turn.Result.Failure.Reason)), zap.Error(turn.Result.Failure))...)
	default:
		h.logger.Info("Turn answered", fields...)
	}

	h.writeJSON(w, r, http.StatusOK, MessageResponse{Messages: turn.Appended, Error: turn.Notice})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, unlock, err := h.session(w, r)
	if err != nil {
		h.internalError(w, r, "Failed to load session", err)
		return
	}
	defer unlock()

	h.writeJSON(w, r, http.StatusOK, sess.Messages)
}

// HandleDocument accepts a PDF upload (POST) or clears the loaded document
// (DELETE).
func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.uploadDocument(w, r)
	case http.MethodDelete:
		h.clearDocument(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("File exceeds %d bytes", h.maxUpload), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Form field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	sess, unlock, err := h.session(w, r)
	if err != nil {
		h.internalError(w, r, "Failed to load session", err)
		return
	}
	defer unlock()

	doc, err := chat.LoadDocument(sess, header.Filename, data, h.extractor)
	switch {
	case errors.Is(err, chat.ErrDocumentLoaded):
		h.writeJSON(w, r, http.StatusOK, DocumentResponse{
			Name:    sess.DocumentName,
			Pages:   sess.DocumentPages,
			Tokens:  sess.DocumentTokens,
			Message: "PDF Content Loaded in Session.",
		})
		return
	case errors.Is(err, document.ErrDocumentParse), errors.Is(err, document.ErrNoText):
		h.logger.Warn("Rejected upload",
			zap.String("session", sess.ID),
			zap.String("filename", header.Filename),
			zap.Error(err))
		http.Error(w, fmt.Sprintf("Failed to read PDF: %v", err), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.internalError(w, r, "Failed to load document", err)
		return
	}

	if _, err := h.db.SetDocument(sess); err != nil {
		h.internalError(w, r, "Failed to store document", err)
		return
	}

	h.logger.Info("Document loaded",
		zap.String("session", sess.ID),
		zap.String("filename", doc.Name),
		zap.Int("pages", doc.Pages),
		zap.Int("tokens", doc.Tokens))

	h.writeJSON(w, r, http.StatusOK, DocumentResponse{
		Loaded:  true,
		Name:    doc.Name,
		Pages:   doc.Pages,
		Tokens:  doc.Tokens,
		Message: "RFP Uploaded & Processed!",
	})
}

func (h *Handler) clearDocument(w http.ResponseWriter, r *http.Request) {
	sess, unlock, err := h.session(w, r)
	if err != nil {
		h.internalError(w, r, "Failed to load session", err)
		return
	}
	defer unlock()

	chat.ClearDocument(sess)
	if err := h.db.ClearDocument(sess.ID); err != nil {
		h.internalError(w, r, "Failed to clear document", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, unlock, err := h.session(w, r)
	if err != nil {
		h.internalError(w, r, "Failed to load session", err)
		return
	}
	defer unlock()

	h.writeJSON(w, r, http.StatusOK, StatusResponse{
		SessionID:      sess.ID,
		DocumentLoaded: sess.HasDocument(),
		DocumentName:   sess.DocumentName,
		DocumentPages:  sess.DocumentPages,
		DocumentTokens: sess.DocumentTokens,
		KeyFromSecret:  h.apiKey != "",
		Variant:        h.branding.Variant,
	})
}

// EndSession deletes the caller's session and expires its cookie.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cookie, err := r.Cookie(SessionCookie)
	if err == nil {
		unlock := h.lock(cookie.Value)
		err := h.db.DeleteSession(cookie.Value)
		unlock()
		h.locks.Delete(cookie.Value)
		if err != nil {
			h.internalError(w, r, "Failed to delete session", err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusOK)
}

// PruneIdle ends every session idle since before cutoff and forgets its
// lock. It returns how many sessions were removed.
func (h *Handler) PruneIdle(cutoff time.Time) (int, error) {
	ids, err := h.db.PruneSessions(cutoff)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		h.locks.Delete(id)
	}
	return len(ids), nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// session returns the caller's session, creating one if the cookie is
// missing or stale. The returned func releases the per-session lock.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*models.Session, func(), error) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		unlock := h.lock(cookie.Value)
		sess, err := h.db.GetSession(cookie.Value)
		if err == nil {
			if err := h.db.Touch(sess.ID); err != nil {
				h.logger.Warn("Failed to touch session", zap.String("session", sess.ID), zap.Error(err))
			}
			return sess, unlock, nil
		}
		unlock()
		if !errors.Is(err, db.ErrNotFound) {
			return nil, nil, err
		}
		h.locks.Delete(cookie.Value)
	}

	id := uuid.NewString()
	unlock := h.lock(id)
	sess, err := h.db.CreateSession(id)
	if err != nil {
		unlock()
		return nil, nil, err
	}

	h.logger.Debug("Created session", zap.String("session", id))
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, unlock, nil
}

func (h *Handler) lock(id string) func() {
	v, _ := h.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response",
			zap.Error(err),
			zap.String("path", r.URL.Path))
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
