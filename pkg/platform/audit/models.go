package audit

import (
	"time"

	id "accman/pkg/domain"
)

// EventCategory classifies audit events so sinks can route and retain them
// differently.
type EventCategory string

const (
	// CategorySecurity covers authentication outcomes and session changes.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine account activity.
	CategoryOperations EventCategory = "operations"
	// CategoryCompliance covers user lifecycle and bulk data movement.
	CategoryCompliance EventCategory = "compliance"
)

type AuditEvent string

const (
	// Auth events
	EventUserRegistered AuditEvent = "user_registered"
	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"
	EventLoggedOut      AuditEvent = "logged_out"
	EventUserStatusSet  AuditEvent = "user_status_set"

	// Account events
	EventAccountCreated   AuditEvent = "account_created"
	EventAccountUpdated   AuditEvent = "account_updated"
	EventAccountsDeleted  AuditEvent = "accounts_deleted"
	EventAccountsImported AuditEvent = "accounts_imported"
	EventAccountsExported AuditEvent = "accounts_exported"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered:   CategoryCompliance,
	EventUserStatusSet:    CategoryCompliance,
	EventAccountsImported: CategoryCompliance,
	EventAccountsExported: CategoryCompliance,
	EventAccountsDeleted:  CategoryCompliance,

	EventLoginSucceeded: CategorySecurity,
	EventLoginFailed:    CategorySecurity,
	EventLoggedOut:      CategorySecurity,

	EventAccountCreated: CategoryOperations,
	EventAccountUpdated: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. It never carries
// account field data.
type Event struct {
	ID        string        `json:"id"`
	Action    AuditEvent    `json:"action"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    id.UserID     `json:"user_id"`
	Subject   string        `json:"subject,omitempty"`
	Count     int           `json:"count,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	IP        string        `json:"ip,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}
