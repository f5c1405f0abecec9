package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestClassifyNil(t *testing.T) {
	require.Nil(t, Classify(nil))
}

func TestClassifyPassesThroughClassifiedErrors(t *testing.T) {
	original := domain.NewDatabaseError(domain.KindDuplicateKey, "duplicate guild", false, nil)
	wrapped := fmt.Errorf("outer context: %w", original)

	classified := Classify(wrapped)
	require.Same(t, original, classified)
}

func TestClassifyTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      domain.DatabaseErrorKind
		retryable bool
	}{
		{
			name:      "dial failure is connection failed",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			kind:      domain.KindConnectionFailed,
			retryable: true,
		},
		{
			name:      "econnrefused is connection failed",
			err:       fmt.Errorf("query: %w", syscall.ECONNREFUSED),
			kind:      domain.KindConnectionFailed,
			retryable: true,
		},
		{
			name:      "context deadline is timeout",
			err:       fmt.Errorf("query: %w", context.DeadlineExceeded),
			kind:      domain.KindConnectionTimeout,
			retryable: true,
		},
		{
			name:      "net timeout is timeout",
			err:       &fakeNetError{timeout: true},
			kind:      domain.KindConnectionTimeout,
			retryable: true,
		},
		{
			name:      "unique violation is duplicate key",
			err:       &pgconn.PgError{Code: "23505", ConstraintName: "documents_guilds_key", Detail: "Key ((doc ->> 'guild_id'::text))=(42) already exists."},
			kind:      domain.KindDuplicateKey,
			retryable: false,
		},
		{
			name:      "not null violation is validation failed",
			err:       &pgconn.PgError{Code: "23502", Message: "null value in column", ColumnName: "doc"},
			kind:      domain.KindValidationFailed,
			retryable: false,
		},
		{
			name:      "invalid text representation is validation failed",
			err:       &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type json"},
			kind:      domain.KindValidationFailed,
			retryable: false,
		},
		{
			name:      "admin shutdown is retryable query failure",
			err:       &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			kind:      domain.KindQueryFailed,
			retryable: true,
		},
		{
			name:      "serialization failure is retryable query failure",
			err:       &pgconn.PgError{Code: "40001", Message: "could not serialize access"},
			kind:      domain.KindQueryFailed,
			retryable: true,
		},
		{
			name:      "deadlock is retryable query failure",
			err:       &pgconn.PgError{Code: "40P01", Message: "deadlock detected"},
			kind:      domain.KindQueryFailed,
			retryable: true,
		},
		{
			name:      "too many connections is retryable query failure",
			err:       &pgconn.PgError{Code: "53300", Message: "too many connections"},
			kind:      domain.KindQueryFailed,
			retryable: true,
		},
		{
			name:      "syntax error is non-retryable query failure",
			err:       &pgconn.PgError{Code: "42601", Message: "syntax error"},
			kind:      domain.KindQueryFailed,
			retryable: false,
		},
		{
			name:      "connection reset is retryable query failure",
			err:       fmt.Errorf("read: %w", syscall.ECONNRESET),
			kind:      domain.KindQueryFailed,
			retryable: true,
		},
		{
			name:      "dns failure is retryable query failure",
			err:       &net.DNSError{Err: "no such host", Name: "db.internal"},
			kind:      domain.KindQueryFailed,
			retryable: true,
		},
		{
			name:      "arbitrary error is unknown",
			err:       errors.New("something odd happened"),
			kind:      domain.KindUnknown,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err)
			require.NotNil(t, classified)
			assert.Equal(t, tt.kind, classified.Kind)
			assert.Equal(t, tt.retryable, classified.Retryable)
			assert.Equal(t, tt.retryable, ShouldRetry(tt.err))
		})
	}
}

func TestClassifyDuplicateKeyNamesConstraint(t *testing.T) {
	classified := Classify(&pgconn.PgError{
		Code:           "23505",
		ConstraintName: "documents_users_key",
		Detail:         "Key ((doc ->> 'user_id'::text))=(7) already exists.",
	})

	require.Equal(t, domain.KindDuplicateKey, classified.Kind)
	assert.Contains(t, classified.Message, "documents_users_key")
	assert.Contains(t, classified.Message, "already exists")
}
