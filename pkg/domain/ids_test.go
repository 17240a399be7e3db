package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "accman/pkg/domain-errors"
)

// IDs must be valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})
}

func TestTypeDistinction(t *testing.T) {
	userID := UserID(uuid.New())
	accountID := AccountID(uuid.New())

	// var _ UserID = accountID would not compile.
	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(accountID))
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE accounts;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400\u200B-e29b-41d4-a716-446655440000", true},
		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseAccountIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	ids, err := ParseAccountIDs([]string{a.String(), b.String()})
	require.NoError(t, err)
	assert.Equal(t, []AccountID{AccountID(a), AccountID(b)}, ids)

	_, err = ParseAccountIDs([]string{a.String(), "nope"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestIDsAsJSON(t *testing.T) {
	raw := uuid.New()
	payload, err := json.Marshal(map[string]AccountID{"id": AccountID(raw)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+raw.String()+`"}`, string(payload))

	var decoded struct {
		ID AccountID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, AccountID(raw), decoded.ID)

	err = json.Unmarshal([]byte(`{"id":"00000000-0000-0000-0000-000000000000"}`), &decoded)
	require.Error(t, err)
}
