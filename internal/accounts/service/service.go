package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"accman/internal/accounts/codec"
	"accman/internal/accounts/metrics"
	"accman/internal/accounts/models"
	"accman/internal/accounts/transfer"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/audit"
	"accman/pkg/platform/sentinel"
	"accman/pkg/platform/tx"
	"accman/pkg/requestcontext"
)

type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	CreateMany(ctx context.Context, accounts []*models.Account) error
	Update(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, userID id.UserID, accountID id.AccountID) (*models.Account, error)
	FindByIDs(ctx context.Context, userID id.UserID, ids []id.AccountID) ([]*models.Account, error)
	Search(ctx context.Context, userID id.UserID, query models.SearchQuery, page models.Page) ([]*models.Account, error)
	SoftDelete(ctx context.Context, userID id.UserID, ids []id.AccountID, now time.Time) (int, error)
	HardDelete(ctx context.Context, userID id.UserID, ids []id.AccountID) (int, error)
}

type Importer interface {
	Extract(ctx context.Context, upload transfer.Upload, charset codec.Charset) ([]codec.Record, error)
}

type Exporter interface {
	Export(ctx context.Context, records []codec.Record, format codec.Format, charset codec.Charset) (*transfer.ExportFile, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const defaultPageSize = 50

// Service orchestrates account management and bulk transfer.
type Service struct {
	store          AccountStore
	importer       Importer
	exporter       Exporter
	tx             tx.Runner
	pageSize       int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTxRunner sets the transaction boundary used for bulk imports.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

// WithPageSize sets how many rows Search loads per store round trip.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store AccountStore, importer Importer, exporter Exporter, opts ...Option) *Service {
	s := &Service{
		store:    store,
		importer: importer,
		exporter: exporter,
		tx:       tx.NewMemory(),
		pageSize: defaultPageSize,
		logger:   slog.Default(),
		tracer:   otel.Tracer("accman/internal/accounts/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, userID id.UserID, req *models.CreateAccountRequest) (*models.Account, error) {
	account, err := models.NewAccount(id.AccountID(uuid.New()), userID, req.Name, req.Data, requestcontext.Now(ctx))
	if err != nil {
		return nil, invariantToValidation(err, "name")
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	s.metrics.IncrementCreated()
	s.emit(ctx, audit.Event{Action: audit.EventAccountCreated, UserID: userID, Subject: account.ID.String()})
	return account, nil
}

// Update replaces the name and data of one of the user's active accounts.
func (s *Service) Update(ctx context.Context, userID id.UserID, req *models.UpdateAccountRequest) (*models.Account, error) {
	account, err := s.store.FindByID(ctx, userID, req.AccountID())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found").At("id")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if !account.IsActive() {
		return nil, dErrors.New(dErrors.CodeNotFound, "account not found").At("id")
	}

	if err := account.Replace(req.Name, req.Data, requestcontext.Now(ctx)); err != nil {
		return nil, invariantToValidation(err, "name")
	}
	if err := s.store.Update(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found").At("id")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}

	s.emit(ctx, audit.Event{Action: audit.EventAccountUpdated, UserID: userID, Subject: account.ID.String()})
	return account, nil
}

// Search loads every matching account, one store page at a time.
func (s *Service) Search(ctx context.Context, userID id.UserID, query models.SearchQuery) ([]*models.Account, error) {
	query.Normalize()

	var results []*models.Account
	for page := 1; ; page++ {
		batch, err := s.store.Search(ctx, userID, query, models.Page{Number: page, Size: s.pageSize})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search accounts")
		}
		results = append(results, batch...)
		if len(batch) < s.pageSize {
			return results, nil
		}
	}
}

// Delete removes the user's active accounts among ids. Nothing matching is a
// not-found error.
func (s *Service) Delete(ctx context.Context, userID id.UserID, ids []id.AccountID, soft bool) error {
	found, err := s.store.FindByIDs(ctx, userID, ids)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accounts")
	}
	if len(found) == 0 {
		return dErrors.New(dErrors.CodeNotFound, "accounts not found")
	}
	owned := make([]id.AccountID, len(found))
	for i, a := range found {
		owned[i] = a.ID
	}

	var (
		n    int
		mode string
	)
	if soft {
		mode = "soft"
		n, err = s.store.SoftDelete(ctx, userID, owned, requestcontext.Now(ctx))
	} else {
		mode = "hard"
		n, err = s.store.HardDelete(ctx, userID, owned)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete accounts")
	}
	if n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "accounts not found")
	}

	s.metrics.AddDeleted(mode, n)
	s.emit(ctx, audit.Event{Action: audit.EventAccountsDeleted, UserID: userID, Count: n, Reason: mode})
	return nil
}

// Import parses an uploaded file and stores every record as a new account in
// one transaction. It returns the number of accounts created.
func (s *Service) Import(ctx context.Context, userID id.UserID, upload transfer.Upload, charset codec.Charset) (int, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.import", trace.WithAttributes(
		attribute.String("accman.charset", string(charset)),
	))
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveImport(start)

	records, err := s.importer.Extract(ctx, upload, charset)
	if err != nil {
		return 0, s.failTransfer(span, "import", err)
	}

	now := requestcontext.Now(ctx)
	accounts := make([]*models.Account, 0, len(records))
	for i, rec := range records {
		if rec.Name == "" {
			err := dErrors.New(dErrors.CodeValidation, fmt.Sprintf("record %d has no name", i+1)).At(transfer.LocationUpload)
			return 0, s.failTransfer(span, "import", err)
		}
		account, err := models.NewAccount(id.AccountID(uuid.New()), userID, rec.Name, rec.Fields, now)
		if err != nil {
			err = dErrors.New(dErrors.CodeValidation, fmt.Sprintf("record %d: %s", i+1, messageOf(err))).At(transfer.LocationUpload)
			return 0, s.failTransfer(span, "import", err)
		}
		accounts = append(accounts, account)
	}
	span.SetAttributes(attribute.Int("accman.records", len(accounts)))

	if len(accounts) > 0 {
		err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			return s.store.CreateMany(txCtx, accounts)
		})
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeTimeout) {
				err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to store imported accounts")
			}
			return 0, s.failTransfer(span, "import", err)
		}
	}

	s.metrics.AddImported(len(accounts))
	s.logger.InfoContext(ctx, "accounts imported",
		"user_id", userID.String(),
		"filename", upload.Filename(),
		"count", len(accounts),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: audit.EventAccountsImported, UserID: userID, Count: len(accounts)})
	return len(accounts), nil
}

// Export writes the selected active accounts to a temporary file. The caller
// owns the returned file and must Close it.
func (s *Service) Export(ctx context.Context, userID id.UserID, req *models.ExportRequest, charset codec.Charset) (*transfer.ExportFile, error) {
	ctx, span := s.tracer.Start(ctx, "accounts.export", trace.WithAttributes(
		attribute.String("accman.format", string(req.Format())),
		attribute.String("accman.charset", string(charset)),
	))
	defer span.End()
	start := time.Now()
	defer s.metrics.ObserveExport(start)

	var (
		accounts []*models.Account
		err      error
	)
	if len(req.IDs()) == 0 {
		accounts, err = s.Search(ctx, userID, models.SearchQuery{})
	} else {
		accounts, err = s.store.FindByIDs(ctx, userID, req.IDs())
		if err != nil {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to load accounts")
		}
	}
	if err != nil {
		return nil, s.failTransfer(span, "export", err)
	}
	span.SetAttributes(attribute.Int("accman.records", len(accounts)))

	file, err := s.exporter.Export(ctx, models.Records(accounts), req.Format(), charset)
	if err != nil {
		return nil, s.failTransfer(span, "export", err)
	}

	s.metrics.IncrementExport(string(req.Format()))
	s.emit(ctx, audit.Event{Action: audit.EventAccountsExported, UserID: userID, Count: len(accounts), Subject: string(req.Format())})
	return file, nil
}

func (s *Service) failTransfer(span trace.Span, direction string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, direction+" failed")
	s.metrics.IncrementTransferFailure(direction)
	return err
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event = audit.Prepare(ctx, event)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"error", err,
			"request_id", event.RequestID,
		)
	}
}

// invariantToValidation converts model invariant violations into validation
// errors for the API response.
func invariantToValidation(err error, location string) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, messageOf(err)).At(location)
	}
	return err
}

func messageOf(err error) string {
	if de, ok := dErrors.From(err); ok {
		return de.Message
	}
	return err.Error()
}
