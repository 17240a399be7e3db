package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"accman/internal/accounts/codec"
	"accman/internal/accounts/models"
	"accman/internal/accounts/transfer"
	"accman/internal/platform/middleware"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/httputil"
	"accman/pkg/requestcontext"
)

// Service defines the account operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, userID id.UserID, req *models.CreateAccountRequest) (*models.Account, error)
	Update(ctx context.Context, userID id.UserID, req *models.UpdateAccountRequest) (*models.Account, error)
	Search(ctx context.Context, userID id.UserID, query models.SearchQuery) ([]*models.Account, error)
	Delete(ctx context.Context, userID id.UserID, ids []id.AccountID, soft bool) error
	Import(ctx context.Context, userID id.UserID, upload transfer.Upload, charset codec.Charset) (int, error)
	Export(ctx context.Context, userID id.UserID, req *models.ExportRequest, charset codec.Charset) (*transfer.ExportFile, error)
}

const (
	defaultTimeout = 30 * time.Second
	// multipartMemory is held in memory before the form spills to disk.
	multipartMemory = 8 << 20
	// multipartOverhead leaves room for boundaries and part headers.
	multipartOverhead = 1 << 20
)

// Handler serves account endpoints.
type Handler struct {
	accounts       Service
	logger         *slog.Logger
	timeout        time.Duration
	maxUploadBytes int64
}

type Option func(*Handler)

// WithTimeout bounds each request's context.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithMaxUploadBytes caps the request body of uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		h.maxUploadBytes = n
	}
}

// New creates a new accounts Handler.
func New(accounts Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		accounts: accounts,
		logger:   logger,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the account routes. Session loading is expected to run
// earlier in the chain; routes that need a user enforce it here.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		r.Post("/search", h.handleSearch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(h.logger))
			r.Post("/accounts/create", h.handleCreate)
			r.Patch("/accounts/update", h.handleUpdate)
			r.Post("/accounts/upload", h.handleUpload)
			r.Post("/accounts/export", h.handleExport)
			r.Delete("/accounts/delete/{account_id}", h.handleDelete)
		})
	})
}

type searchResponse struct {
	Accounts []*models.Account `json:"accounts"`
}

// handleSearch looks up the caller's accounts by name. Anonymous callers get
// an empty result rather than an error.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.WarnContext(ctx, "invalid search form",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid form").At("search"))
		return
	}

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteJSON(w, http.StatusOK, searchResponse{Accounts: []*models.Account{}})
		return
	}

	exact, _ := strconv.ParseBool(r.FormValue("exact"))
	query := models.SearchQuery{
		Name:       r.FormValue("search"),
		Details:    r.FormValue("details"),
		ExactMatch: exact,
	}
	accounts, err := h.accounts.Search(ctx, userID, query)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to search accounts")
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	httputil.WriteJSON(w, http.StatusOK, searchResponse{Accounts: accounts})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateAccountRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	account, err := h.accounts.Create(ctx, requestcontext.UserID(ctx), req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to create account")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, account)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.UpdateAccountRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	account, err := h.accounts.Update(ctx, requestcontext.UserID(ctx), req)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to update account")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

type uploadResponse struct {
	CreatedAccounts int `json:"created_accounts"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.logger.WarnContext(ctx, "invalid upload form",
			"error", err,
			"request_id", requestID,
		)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file is too large").At("file"))
			return
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart form with a file is required").At("file"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file is required").At("file"))
		return
	}

	created, err := h.accounts.Import(ctx, requestcontext.UserID(ctx), transfer.FromMultipart(files[0]), codec.CharsetForUserAgent(r.UserAgent()))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to import accounts")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{CreatedAccounts: created})
}

// handleExport streams the export as an attachment. The temp file is removed
// once the response has been written, whether or not streaming succeeded.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ExportRequest](w, r, h.logger, requestID)
	if !ok {
		return
	}
	charset := codec.CharsetForUserAgent(r.UserAgent())
	export, err := h.accounts.Export(ctx, requestcontext.UserID(ctx), req, charset)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to export accounts")
		return
	}
	defer func() {
		if err := export.Close(); err != nil {
			h.logger.ErrorContext(ctx, "failed to remove export file",
				"path", export.Path,
				"error", err,
				"request_id", requestID,
			)
		}
	}()

	f, err := export.Open()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to open export file",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to export accounts"))
		return
	}
	defer f.Close()

	header := w.Header()
	header.Set("Content-Type", mime.FormatMediaType(export.Format.ContentType(), map[string]string{"charset": string(charset.ForFormat(export.Format))}))
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.DownloadName}))
	if info, err := f.Stat(); err == nil {
		header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.WarnContext(ctx, "export stream interrupted",
			"error", err,
			"request_id", requestID,
		)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, err := id.ParseAccountID(chi.URLParam(r, "account_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid account id").At("account_id"))
		return
	}
	if err := h.accounts.Delete(ctx, requestcontext.UserID(ctx), []id.AccountID{accountID}, true); err != nil {
		h.writeServiceError(ctx, w, err, "failed to delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError logs client errors at warn and everything else at error
// before writing the response.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.HasCode(err, dErrors.CodeInternal) || !isCoded(err) {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", requestID,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"error", err,
			"request_id", requestID,
		)
	}
	httputil.WriteError(w, err)
}

func isCoded(err error) bool {
	_, ok := dErrors.From(err)
	return ok
}
