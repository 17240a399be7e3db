package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AccountStore,Importer,Exporter,AuditPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"accman/internal/accounts/codec"
	"accman/internal/accounts/models"
	"accman/internal/accounts/service/mocks"
	"accman/internal/accounts/transfer"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/platform/audit"
	"accman/pkg/platform/sentinel"
	"accman/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	store    *mocks.MockAccountStore
	importer *mocks.MockImporter
	exporter *mocks.MockExporter
	auditor  *mocks.MockAuditPublisher
	service  *Service
	userID   id.UserID
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.store = mocks.NewMockAccountStore(ctrl)
	s.importer = mocks.NewMockImporter(ctrl)
	s.exporter = mocks.NewMockExporter(ctrl)
	s.auditor = mocks.NewMockAuditPublisher(ctrl)
	s.service = New(s.store, s.importer, s.exporter,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.auditor),
		WithPageSize(2),
	)
	s.userID = id.UserID(uuid.New())
	s.now = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) account(name string, kv ...string) *models.Account {
	a, err := models.NewAccount(id.AccountID(uuid.New()), s.userID, name, codec.NewFields(kv...), s.now)
	s.Require().NoError(err)
	return a
}

func (s *ServiceSuite) expectAudit(action audit.AuditEvent) {
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(action, e.Action)
		s.Equal(s.userID, e.UserID)
		s.Equal(s.now, e.Timestamp)
		return nil
	})
}

func (s *ServiceSuite) TestCreate() {
	s.Run("stores a new active account", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a *models.Account) error {
			s.Equal("Mail", a.Name)
			s.Equal(s.userID, a.UserID)
			s.Equal(models.StatusActive, a.Status)
			return nil
		})
		s.expectAudit(audit.EventAccountCreated)

		a, err := s.service.Create(s.ctx, s.userID, &models.CreateAccountRequest{Name: "Mail", Data: codec.NewFields("Login", "me")})
		s.Require().NoError(err)
		s.False(a.ID.IsNil())
		s.Equal(s.now, a.CreatedAt)
	})

	s.Run("invariant violation becomes validation error", func() {
		_, err := s.service.Create(s.ctx, s.userID, &models.CreateAccountRequest{Name: ""})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("store failure is internal", func() {
		s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
		_, err := s.service.Create(s.ctx, s.userID, &models.CreateAccountRequest{Name: "Mail", Data: codec.NewFields()})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestUpdate() {
	existing := s.account("Mail", "Login", "me")
	req := &models.UpdateAccountRequest{ID: existing.ID.String(), Name: "Mail 2", Data: codec.NewFields("Login", "you")}
	s.Require().NoError(req.Validate())

	s.Run("replaces name and data", func() {
		s.store.EXPECT().FindByID(gomock.Any(), s.userID, existing.ID).Return(existing, nil)
		s.store.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, a *models.Account) error {
			s.Equal("Mail 2", a.Name)
			v, _ := a.Data.Get("Login")
			s.Equal("you", v)
			return nil
		})
		s.expectAudit(audit.EventAccountUpdated)

		_, err := s.service.Update(s.ctx, s.userID, req)
		s.Require().NoError(err)
	})

	s.Run("missing account is not found", func() {
		s.store.EXPECT().FindByID(gomock.Any(), s.userID, existing.ID).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Update(s.ctx, s.userID, req)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("deleted account is not found", func() {
		gone := s.account("Old")
		gone.MarkDeleted(s.now)
		s.store.EXPECT().FindByID(gomock.Any(), s.userID, existing.ID).Return(gone, nil)
		_, err := s.service.Update(s.ctx, s.userID, req)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSearch_DrainsPages() {
	a, b, c := s.account("A"), s.account("B"), s.account("C")
	gomock.InOrder(
		s.store.EXPECT().Search(gomock.Any(), s.userID, gomock.Any(), models.Page{Number: 1, Size: 2}).Return([]*models.Account{a, b}, nil),
		s.store.EXPECT().Search(gomock.Any(), s.userID, gomock.Any(), models.Page{Number: 2, Size: 2}).Return([]*models.Account{c}, nil),
	)

	got, err := s.service.Search(s.ctx, s.userID, models.SearchQuery{Name: "*"})
	s.Require().NoError(err)
	s.Equal([]*models.Account{a, b, c}, got)
}

func (s *ServiceSuite) TestSearch_NormalizesStar() {
	s.store.EXPECT().Search(gomock.Any(), s.userID, models.SearchQuery{Name: ""}, gomock.Any()).Return(nil, nil)
	got, err := s.service.Search(s.ctx, s.userID, models.SearchQuery{Name: " * "})
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *ServiceSuite) TestDelete() {
	a := s.account("A")

	s.Run("soft", func() {
		s.store.EXPECT().FindByIDs(gomock.Any(), s.userID, []id.AccountID{a.ID}).Return([]*models.Account{a}, nil)
		s.store.EXPECT().SoftDelete(gomock.Any(), s.userID, []id.AccountID{a.ID}, s.now).Return(1, nil)
		s.expectAudit(audit.EventAccountsDeleted)
		s.Require().NoError(s.service.Delete(s.ctx, s.userID, []id.AccountID{a.ID}, true))
	})

	s.Run("hard", func() {
		s.store.EXPECT().FindByIDs(gomock.Any(), s.userID, []id.AccountID{a.ID}).Return([]*models.Account{a}, nil)
		s.store.EXPECT().HardDelete(gomock.Any(), s.userID, []id.AccountID{a.ID}).Return(1, nil)
		s.expectAudit(audit.EventAccountsDeleted)
		s.Require().NoError(s.service.Delete(s.ctx, s.userID, []id.AccountID{a.ID}, false))
	})

	s.Run("nothing owned is not found", func() {
		s.store.EXPECT().FindByIDs(gomock.Any(), s.userID, gomock.Any()).Return(nil, nil)
		err := s.service.Delete(s.ctx, s.userID, []id.AccountID{a.ID}, true)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestImport() {
	upload := transfer.NewUpload("backup.txt", nil)

	s.Run("stores every record in one batch", func() {
		s.importer.EXPECT().Extract(gomock.Any(), upload, codec.CharsetUTF8).Return([]codec.Record{
			{Name: "A", Fields: codec.NewFields("k", "v")},
			{Name: "A", Fields: codec.NewFields()},
		}, nil)
		s.store.EXPECT().CreateMany(gomock.Any(), gomock.Len(2)).Return(nil)
		s.expectAudit(audit.EventAccountsImported)

		n, err := s.service.Import(s.ctx, s.userID, upload, codec.CharsetUTF8)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("unnamed record rejects the batch", func() {
		s.importer.EXPECT().Extract(gomock.Any(), upload, codec.CharsetUTF8).Return([]codec.Record{
			{Name: "A", Fields: codec.NewFields()},
			{Name: "", Fields: codec.NewFields()},
		}, nil)

		_, err := s.service.Import(s.ctx, s.userID, upload, codec.CharsetUTF8)
		de, ok := dErrors.From(err)
		s.Require().True(ok)
		s.Equal(dErrors.CodeValidation, de.Code)
		s.Equal([]string{transfer.LocationUpload}, de.Locations)
		s.Contains(de.Message, "record 2")
	})

	s.Run("empty file creates nothing", func() {
		s.importer.EXPECT().Extract(gomock.Any(), upload, codec.CharsetUTF8).Return(nil, nil)
		s.expectAudit(audit.EventAccountsImported)

		n, err := s.service.Import(s.ctx, s.userID, upload, codec.CharsetUTF8)
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("extract errors pass through", func() {
		s.importer.EXPECT().Extract(gomock.Any(), upload, codec.CharsetUTF8).Return(nil, transfer.ErrUnreadable)
		_, err := s.service.Import(s.ctx, s.userID, upload, codec.CharsetUTF8)
		s.ErrorIs(err, transfer.ErrUnreadable)
	})

	s.Run("store failure is internal", func() {
		s.importer.EXPECT().Extract(gomock.Any(), upload, codec.CharsetUTF8).Return([]codec.Record{{Name: "A"}}, nil)
		s.store.EXPECT().CreateMany(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)
		_, err := s.service.Import(s.ctx, s.userID, upload, codec.CharsetUTF8)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestExport() {
	a := s.account("A", "k", "v")
	file := &transfer.ExportFile{Path: "/tmp/x.json", DownloadName: "Accounts.json", Format: codec.FormatJSON}

	s.Run("selected ids", func() {
		req := models.NewExportRequest([]id.AccountID{a.ID}, codec.FormatJSON)
		s.store.EXPECT().FindByIDs(gomock.Any(), s.userID, []id.AccountID{a.ID}).Return([]*models.Account{a}, nil)
		s.exporter.EXPECT().Export(gomock.Any(), []codec.Record{a.Record()}, codec.FormatJSON, codec.CharsetWindows1251).Return(file, nil)
		s.expectAudit(audit.EventAccountsExported)

		got, err := s.service.Export(s.ctx, s.userID, req, codec.CharsetWindows1251)
		s.Require().NoError(err)
		s.Same(file, got)
	})

	s.Run("no ids exports every active account", func() {
		req := models.NewExportRequest(nil, codec.FormatText)
		s.store.EXPECT().Search(gomock.Any(), s.userID, models.SearchQuery{}, models.Page{Number: 1, Size: 2}).Return([]*models.Account{a}, nil)
		s.exporter.EXPECT().Export(gomock.Any(), gomock.Len(1), codec.FormatText, codec.CharsetUTF8).Return(file, nil)
		s.expectAudit(audit.EventAccountsExported)

		_, err := s.service.Export(s.ctx, s.userID, req, codec.CharsetUTF8)
		s.Require().NoError(err)
	})

	s.Run("exporter failure", func() {
		req := models.NewExportRequest([]id.AccountID{a.ID}, codec.FormatJSON)
		s.store.EXPECT().FindByIDs(gomock.Any(), s.userID, gomock.Any()).Return([]*models.Account{a}, nil)
		s.exporter.EXPECT().Export(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInternal, "failed to write export file"))

		_, err := s.service.Export(s.ctx, s.userID, req, codec.CharsetUTF8)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailOperation() {
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	_, err := s.service.Create(s.ctx, s.userID, &models.CreateAccountRequest{Name: "Mail", Data: codec.NewFields()})
	s.NoError(err)
}
