package models

import (
	"strings"

	"accman/internal/accounts/codec"
	id "accman/pkg/domain"
	dErrors "accman/pkg/domain-errors"
)

// SearchAll is the name query that matches every account.
const SearchAll = "*"

type CreateAccountRequest struct {
	Name string        `json:"name"`
	Data *codec.Fields `json:"data"`
}

func (r *CreateAccountRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *CreateAccountRequest) Validate() error {
	return validateNameAndData(r.Name, r.Data)
}

type UpdateAccountRequest struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Data *codec.Fields `json:"data"`

	accountID id.AccountID
}

func (r *UpdateAccountRequest) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
}

func (r *UpdateAccountRequest) Validate() error {
	parsed, err := id.ParseAccountID(r.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid account id").At("id")
	}
	r.accountID = parsed
	return validateNameAndData(r.Name, r.Data)
}

// AccountID is the parsed ID, available after Validate succeeds.
func (r *UpdateAccountRequest) AccountID() id.AccountID {
	return r.accountID
}

func validateNameAndData(name string, data *codec.Fields) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required").At("name")
	}
	if len([]rune(name)) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name must be 100 characters or less").At("name")
	}
	if data == nil {
		return dErrors.New(dErrors.CodeValidation, "data is required").At("data")
	}
	return nil
}

// SearchQuery selects a user's accounts.
//
// An empty Name or SearchAll matches every name. Name matches as a substring
// unless ExactMatch is set. Details matches as a substring of any field key
// or value. Deleted accounts are included only with IncludeDeleted.
type SearchQuery struct {
	Name           string
	Details        string
	ExactMatch     bool
	IncludeDeleted bool
	AccountIDs     []id.AccountID
}

// Normalize resolves SearchAll to an empty name filter.
func (q *SearchQuery) Normalize() {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == SearchAll {
		q.Name = ""
	}
	q.Details = strings.TrimSpace(q.Details)
}

// Matches reports whether a satisfies the query. In-memory stores use it
// directly; the PostgreSQL store expresses the same filter in SQL.
func (q SearchQuery) Matches(a *Account) bool {
	if !q.IncludeDeleted && !a.IsActive() {
		return false
	}
	if len(q.AccountIDs) > 0 && !containsID(q.AccountIDs, a.ID) {
		return false
	}
	if q.Name != "" {
		if q.ExactMatch && a.Name != q.Name {
			return false
		}
		if !q.ExactMatch && !strings.Contains(a.Name, q.Name) {
			return false
		}
	}
	if q.Details != "" && !dataContains(a.Data, q.Details) {
		return false
	}
	return true
}

func containsID(ids []id.AccountID, want id.AccountID) bool {
	for _, v := range ids {
		if v == want {
			return true
		}
	}
	return false
}

func dataContains(data *codec.Fields, needle string) bool {
	for k, v := range data.All() {
		if strings.Contains(k, needle) || strings.Contains(v, needle) {
			return true
		}
	}
	return false
}

// Page is a 1-based page of a result set.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// ExportRequest selects accounts to export. An empty AccountIDs exports every
// active account of the user.
type ExportRequest struct {
	AccountIDs []string `json:"accounts_ids"`
	ExportType string   `json:"export_type"`

	ids    []id.AccountID
	format codec.Format
}

func (r *ExportRequest) Normalize() {
	r.ExportType = strings.ToLower(strings.TrimSpace(r.ExportType))
	if r.ExportType == "" {
		r.ExportType = string(codec.FormatText)
	}
}

func (r *ExportRequest) Validate() error {
	format, err := codec.ParseFormat(r.ExportType)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, err.Error()).At("export_type")
	}
	ids, err := id.ParseAccountIDs(r.AccountIDs)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid account id").At("accounts_ids")
	}
	r.format = format
	r.ids = ids
	return nil
}

func (r *ExportRequest) Format() codec.Format { return r.format }
func (r *ExportRequest) IDs() []id.AccountID  { return r.ids }

// NewExportRequest builds an already-validated request.
func NewExportRequest(ids []id.AccountID, format codec.Format) *ExportRequest {
	return &ExportRequest{ids: ids, format: format}
}
