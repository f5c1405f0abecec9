package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"gitlab.com/chatforge/api/guilddesk-service/internal/domain"
)

// Classify maps a raw persistence failure to the closed DatabaseError
// taxonomy. It is total (never panics, handles nil) and deterministic; it is
// the retry predicate's only input, so every rule fixes the retryable flag.
//
// Rules are applied in priority order:
//  1. connection-establishment failures -> ConnectionFailed, retryable
//  2. timeouts (context deadline, net timeouts) -> ConnectionTimeout, retryable
//  3. validation-class SQLSTATEs (22xxx/23xxx except unique) -> ValidationFailed
//  4. unique violations (23505) -> DuplicateKey, naming the offending key
//  5. transient transport/server SQLSTATEs and net resets -> QueryFailed, retryable
//  6. any other SQLSTATE -> QueryFailed, non-retryable; everything else -> Unknown
func Classify(err error) *domain.DatabaseError {
	if err == nil {
		return nil
	}

	// Already classified errors pass through unchanged.
	var dbErr *domain.DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr
	}

	// 1. Connection establishment failures.
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return domain.NewDatabaseError(domain.KindConnectionFailed, "failed to connect to database server", true, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return domain.NewDatabaseError(domain.KindConnectionFailed, "database server unreachable", true, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.NewDatabaseError(domain.KindConnectionFailed, "database connection refused", true, err)
	}

	// 2. Timeouts.
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewDatabaseError(domain.KindConnectionTimeout, "database operation timed out", true, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewDatabaseError(domain.KindConnectionTimeout, "network timeout talking to database", true, err)
	}

	// 3/4/5. SQLSTATE-based classification.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr, err)
	}

	// 5. Transient transport failures outside the driver's error types.
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.NewDatabaseError(domain.KindQueryFailed, "DNS resolution failed for database host", true, err)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return domain.NewDatabaseError(domain.KindQueryFailed, "database connection reset", true, err)
	}
	if errors.As(err, &netErr) {
		return domain.NewDatabaseError(domain.KindQueryFailed, "transient network failure talking to database", true, err)
	}

	// 6. Fallback.
	return domain.NewDatabaseError(domain.KindUnknown, "unexpected database error", false, err)
}

func classifySQLState(pgErr *pgconn.PgError, cause error) *domain.DatabaseError {
	code := pgErr.Code
	switch {
	case code == "23505":
		msg := fmt.Sprintf("duplicate key violates constraint %q", pgErr.ConstraintName)
		if pgErr.Detail != "" {
			// Detail names the offending field and value, e.g. `Key (x)=(y) already exists.`
			msg += ": " + pgErr.Detail
		}
		return domain.NewDatabaseError(domain.KindDuplicateKey, msg, false, cause)

	case strings.HasPrefix(code, "23"), strings.HasPrefix(code, "22"):
		// Integrity/data exceptions: aggregate everything the server tells us.
		parts := []string{pgErr.Message}
		if pgErr.Detail != "" {
			parts = append(parts, pgErr.Detail)
		}
		if pgErr.ColumnName != "" {
			parts = append(parts, "column "+pgErr.ColumnName)
		}
		return domain.NewDatabaseError(domain.KindValidationFailed, strings.Join(parts, "; "), false, cause)

	case strings.HasPrefix(code, "08"), // connection exceptions
		code == "57P01", // admin_shutdown
		code == "57P02", // crash_shutdown
		code == "57P03", // cannot_connect_now
		code == "40001", // serialization_failure
		code == "40P01", // deadlock_detected
		code == "53300": // too_many_connections
		return domain.NewDatabaseError(domain.KindQueryFailed, fmt.Sprintf("transient database failure (SQLSTATE %s): %s", code, pgErr.Message), true, cause)

	default:
		return domain.NewDatabaseError(domain.KindQueryFailed, fmt.Sprintf("query failed (SQLSTATE %s): %s", code, pgErr.Message), false, cause)
	}
}

// ShouldRetry is the retry predicate shared by all persistence call-sites:
// retry only failures the classifier marks retryable.
func ShouldRetry(err error) bool {
	classified := Classify(err)
	return classified != nil && classified.Retryable
}
