package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/ledger-backend/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertPaymentAudit writes an audit entry. Payment events must never be
// dropped, so the caller's transaction fails with it.
func insertPaymentAudit(ctx context.Context, db execer, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	// Ensure ID and timestamp are set
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, payment_id, event_type,
			amount_before, amount_after, total_paid, payment_status,
			actor_id, actor_email, ip_address, user_agent, device_info,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14
		)`

	_, err := db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PaymentID, string(audit.EventType),
		audit.AmountBefore, audit.AmountAfter, audit.TotalPaid, string(audit.PaymentStatus),
		audit.ActorID, audit.ActorEmail, audit.IPAddress, audit.UserAgent, audit.DeviceInfo,
		audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log payment audit: %w", err)
	}
	return nil
}

// listPaymentAudits returns a booking's audit entries, oldest first
func listPaymentAudits(ctx context.Context, db queryer, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	err := db.SelectContext(ctx, &audits, `
		SELECT id, booking_id, payment_id, event_type,
			   amount_before, amount_after, total_paid, payment_status,
			   actor_id, actor_email, ip_address, user_agent, device_info,
			   created_at
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}
