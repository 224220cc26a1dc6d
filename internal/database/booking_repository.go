package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tourdesk/ledger-backend/internal/models"
)

const bookingSelect = `
	SELECT b.id, b.name, b.mobile_no, b.package_price, b.member_count,
		   b.net_cost, b.discount, b.total_cost, b.payment_type,
		   b.payment_status, b.status_override, b.total_paid, b.remaining,
		   b.reminder_count, b.last_reminder_at, b.created_at, b.updated_at,
		   p.id AS "package.id",
		   p.package_name AS "package.package_name",
		   p.price AS "package.price"
	FROM bookings b
	JOIN tour_packages p ON p.id = b.package_id`

const paymentSelect = `
	SELECT seq, id, booking_id, amount, payment_method, status,
		   payment_date, note, created_by_id, created_by_email
	FROM payments`

const memberSelect = `
	SELECT id, booking_id, name, mobile_no, address, document
	FROM booking_members`

// paymentRow flattens the nullable creator columns
type paymentRow struct {
	models.Payment
	CreatedByID    uuid.NullUUID  `db:"created_by_id"`
	CreatedByEmail sql.NullString `db:"created_by_email"`
}

func (r paymentRow) toModel() models.Payment {
	p := r.Payment
	if r.CreatedByID.Valid {
		p.CreatedBy = &models.CreatedBy{ID: r.CreatedByID.UUID, Email: r.CreatedByEmail.String}
	}
	return p
}

type memberRow struct {
	models.Member
	BookingID uuid.UUID `db:"booking_id"`
}

// BookingRepository is the PostgreSQL BookingStore
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetBooking retrieves a booking by ID with its payments and members
func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, bookingSelect+` WHERE b.id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	if err := loadChildren(ctx, r.db, []*models.Booking{&booking}); err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookings retrieves bookings matching the prefilter, least recently reminded first
func (r *BookingRepository) ListBookings(ctx context.Context, f BookingPrefilter) ([]*models.Booking, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if f.TourPackageID != nil {
		args = append(args, *f.TourPackageID)
		conditions = append(conditions, fmt.Sprintf("b.package_id = $%d", len(args)))
	}
	if f.PaymentStatus != nil {
		args = append(args, string(*f.PaymentStatus))
		conditions = append(conditions, fmt.Sprintf("b.payment_status = $%d", len(args)))
	}
	if f.PaymentType != nil {
		args = append(args, string(*f.PaymentType))
		conditions = append(conditions, fmt.Sprintf("b.payment_type = $%d", len(args)))
	}

	query := bookingSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY b.last_reminder_at ASC NULLS FIRST, b.created_at ASC, b.id ASC"

	var rows []models.Booking
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*models.Booking, len(rows))
	for i := range rows {
		bookings[i] = &rows[i]
	}
	if err := loadChildren(ctx, r.db, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListPackages retrieves all tour packages
func (r *BookingRepository) ListPackages(ctx context.Context) ([]models.TourPackage, error) {
	var packages []models.TourPackage
	err := r.db.SelectContext(ctx, &packages, `
		SELECT id, package_name, price
		FROM tour_packages
		ORDER BY package_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour packages: %w", err)
	}
	return packages, nil
}

// IncrementReminder bumps reminder_count in a single statement so concurrent
// callers can never lose an increment
func (r *BookingRepository) IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) (models.ReminderStamp, error) {
	var stamp models.ReminderStamp
	err := r.db.QueryRowxContext(ctx, `
		UPDATE bookings
		SET reminder_count = reminder_count + 1,
			last_reminder_at = $2,
			updated_at = $2
		WHERE id = $1
		RETURNING id, reminder_count, last_reminder_at`,
		id, at,
	).Scan(&stamp.BookingID, &stamp.ReminderCount, &stamp.LastReminderAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.ReminderStamp{}, ErrBookingNotFound
		}
		return models.ReminderStamp{}, fmt.Errorf("failed to increment reminder: %w", classifyPQError(err))
	}
	return stamp, nil
}

// ListAudits retrieves the audit trail of a booking
func (r *BookingRepository) ListAudits(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	return listPaymentAudits(ctx, r.db, bookingID)
}

// InLedgerTx runs fn inside a READ COMMITTED transaction. Row locks taken by
// LockBooking serialize writers of the same booking.
func (r *BookingRepository) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classifyPQError(err))
	}
	defer tx.Rollback()

	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return classifyPQError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classifyPQError(err))
	}
	return nil
}

type pgLedgerTx struct {
	tx *sqlx.Tx
}

// LockBooking selects the booking row FOR UPDATE and loads its payments
func (t *pgLedgerTx) LockBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := t.tx.GetContext(ctx, &booking, bookingSelect+` WHERE b.id = $1 FOR UPDATE OF b`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	if err := loadChildren(ctx, t.tx, []*models.Booking{&booking}); err != nil {
		return nil, err
	}
	return &booking, nil
}

// InsertPayment stores p and assigns its sequence number
func (t *pgLedgerTx) InsertPayment(ctx context.Context, p *models.Payment) error {
	var createdByID uuid.NullUUID
	var createdByEmail sql.NullString
	if p.CreatedBy != nil {
		createdByID = uuid.NullUUID{UUID: p.CreatedBy.ID, Valid: true}
		createdByEmail = sql.NullString{String: p.CreatedBy.Email, Valid: p.CreatedBy.Email != ""}
	}

	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO payments (
			id, booking_id, amount, payment_method, status,
			payment_date, note, created_by_id, created_by_email
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		p.ID, p.BookingID, p.Amount, string(p.Method), string(p.Status),
		p.PaymentDate, p.Note, createdByID, createdByEmail,
	).Scan(&p.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// UpdatePayment rewrites the mutable fields of p
func (t *pgLedgerTx) UpdatePayment(ctx context.Context, p *models.Payment) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE payments
		SET amount = $3, payment_method = $4, status = $5,
			payment_date = $6, note = $7
		WHERE id = $1 AND booking_id = $2`,
		p.ID, p.BookingID, p.Amount, string(p.Method), string(p.Status),
		p.PaymentDate, p.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return requireOneRow(result, ErrPaymentNotFound)
}

// DeletePayment hard-deletes a payment
func (t *pgLedgerTx) DeletePayment(ctx context.Context, bookingID, paymentID uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM payments WHERE id = $1 AND booking_id = $2`,
		paymentID, bookingID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireOneRow(result, ErrPaymentNotFound)
}

// SaveLedger persists the derived ledger columns
func (t *pgLedgerTx) SaveLedger(ctx context.Context, b *models.Booking) error {
	var override sql.NullString
	if b.StatusOverride != nil {
		override = sql.NullString{String: string(*b.StatusOverride), Valid: true}
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE bookings
		SET total_paid = $2, remaining = $3, payment_status = $4,
			status_override = $5, updated_at = $6
		WHERE id = $1`,
		b.ID, b.TotalPaid, b.Remaining, string(b.PaymentStatus), override, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return requireOneRow(result, ErrBookingNotFound)
}

// AppendAudit writes an audit entry in the ledger transaction
func (t *pgLedgerTx) AppendAudit(ctx context.Context, a *models.PaymentAudit) error {
	return insertPaymentAudit(ctx, t.tx, a)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// loadChildren attaches payments (insertion order) and members to bookings
func loadChildren(ctx context.Context, q queryer, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make(pq.StringArray, len(bookings))
	byID := make(map[uuid.UUID]*models.Booking, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID.String()
		byID[b.ID] = b
		b.Payments = []models.Payment{}
		b.Members = []models.Member{}
	}

	var payments []paymentRow
	if err := q.SelectContext(ctx, &payments,
		paymentSelect+` WHERE booking_id = ANY($1::uuid[]) ORDER BY booking_id, seq ASC`, ids); err != nil {
		return fmt.Errorf("failed to load payments: %w", err)
	}
	for _, row := range payments {
		if b, ok := byID[row.BookingID]; ok {
			b.Payments = append(b.Payments, row.toModel())
		}
	}

	var members []memberRow
	if err := q.SelectContext(ctx, &members,
		memberSelect+` WHERE booking_id = ANY($1::uuid[]) ORDER BY booking_id, position ASC`, ids); err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}
	for _, row := range members {
		if b, ok := byID[row.BookingID]; ok {
			b.Members = append(b.Members, row.Member)
		}
	}

	return nil
}

func requireOneRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// classifyPQError maps serialization failures and deadlocks to ErrConcurrentUpdate
func classifyPQError(err error) error {
	if err == nil || errors.Is(err, ErrConcurrentUpdate) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrConcurrentUpdate, pqErr.Message)
		}
	}
	return err
}
