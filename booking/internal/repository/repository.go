package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/hostelhub/booking-service/booking/internal/errs"
	"github.com/hostelhub/booking-service/booking/internal/model"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock.go -package=repo_mocks

// Repository is the durable source of truth for bookings. The database
// enforces the no-overlap invariant itself through an exclusion constraint
// on (bed_type, [check_in, check_out)), so Save and Update reject
// overlapping writes across all service instances.
type Repository interface {
	Save(ctx context.Context, b model.Booking) (model.Booking, error)
	FindByUID(ctx context.Context, bookingUid string) (model.Booking, error)
	FindOverlapping(ctx context.Context, bedType model.BedType, checkIn, checkOut time.Time) ([]model.Booking, error)
	Update(ctx context.Context, b model.Booking) (model.Booking, error)
	Delete(ctx context.Context, bookingUid string) error
	ListActive(ctx context.Context) ([]model.Booking, error)
	ListCheckedOut(ctx context.Context, now time.Time) ([]model.Booking, error)
	ListDueReminders(ctx context.Context, till time.Time) ([]model.Booking, error)
	MarkReminderSent(ctx context.Context, bookingUid string, at time.Time) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const bookingTableName = `booking`

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var bookingColumns = []string{
	"id", "booking_uid", "bed_type", "guest_reference", "status",
	"check_in", "check_out", "version", "created_at", "updated_at",
}

func (r *repository) Save(ctx context.Context, b model.Booking) (model.Booking, error) {
	q, args, err := qb.Insert(bookingTableName).
		Columns("booking_uid", "bed_type", "guest_reference", "status",
			"check_in", "check_out", "version", "created_at", "updated_at").
		Values(b.BookingUid, b.BedType, b.GuestReference, b.Status,
			b.CheckIn, b.CheckOut, b.Version, b.CreatedAt, b.UpdatedAt).
		Suffix("returning " + columns()).
		ToSql()
	if err != nil {
		return model.Booking{}, err
	}
	var saved model.Booking
	if err := r.db.GetContext(ctx, &saved, q, args...); err != nil {
		if isExclusionViolation(err) {
			return model.Booking{}, errs.ErrOverlapConflict
		}
		r.log.Error("Save", zap.String("bookingUid", b.BookingUid), zap.Error(err))
		return model.Booking{}, err
	}
	return saved, nil
}

func (r *repository) FindByUID(ctx context.Context, bookingUid string) (model.Booking, error) {
	q, args, err := qb.Select(bookingColumns...).
		From(bookingTableName).
		Where(sq.Eq{"booking_uid": bookingUid}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Booking{}, err
	}
	var b model.Booking
	if err := r.db.GetContext(ctx, &b, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Booking{}, errs.ErrNotFound
		}
		return model.Booking{}, err
	}
	return b, nil
}

// FindOverlapping applies the half-open overlap predicate at the query
// boundary: check_in < till AND check_out > from. Cancelled bookings never
// occupy the calendar. Results are ordered by check_in.
func (r *repository) FindOverlapping(ctx context.Context, bedType model.BedType, checkIn, checkOut time.Time) ([]model.Booking, error) {
	q, args, err := qb.Select(bookingColumns...).
		From(bookingTableName).
		Where(sq.Eq{"bed_type": bedType}).
		Where(sq.NotEq{"status": model.StatusCancelled}).
		Where(sq.Lt{"check_in": checkOut}).
		Where(sq.Gt{"check_out": checkIn}).
		OrderBy("check_in").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Booking
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

// Update performs the optimistic-concurrency write: the row is touched only
// when the stored version equals b.Version. On a miss the booking is
// re-read to distinguish a stale version from a missing row.
func (r *repository) Update(ctx context.Context, b model.Booking) (model.Booking, error) {
	q, args, err := qb.Update(bookingTableName).
		Set("bed_type", b.BedType).
		Set("guest_reference", b.GuestReference).
		Set("status", b.Status).
		Set("check_in", b.CheckIn).
		Set("check_out", b.CheckOut).
		Set("version", b.Version+1).
		Set("updated_at", b.UpdatedAt).
		Where(sq.Eq{"booking_uid": b.BookingUid}).
		Where(sq.Eq{"version": b.Version}).
		Suffix("returning " + columns()).
		ToSql()
	if err != nil {
		return model.Booking{}, err
	}
	var updated model.Booking
	if err := r.db.GetContext(ctx, &updated, q, args...); err != nil {
		if isExclusionViolation(err) {
			return model.Booking{}, errs.ErrOverlapConflict
		}
		if errors.Is(err, sql.ErrNoRows) {
			if _, ferr := r.FindByUID(ctx, b.BookingUid); ferr != nil {
				return model.Booking{}, ferr
			}
			return model.Booking{}, errs.ErrStaleVersion
		}
		r.log.Error("Update", zap.String("bookingUid", b.BookingUid), zap.Error(err))
		return model.Booking{}, err
	}
	return updated, nil
}

func (r *repository) Delete(ctx context.Context, bookingUid string) error {
	q, args, err := qb.Delete(bookingTableName).
		Where(sq.Eq{"booking_uid": bookingUid}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) ListActive(ctx context.Context) ([]model.Booking, error) {
	q, args, err := qb.Select(bookingColumns...).
		From(bookingTableName).
		Where(sq.Eq{"status": []model.Status{model.StatusPending, model.StatusConfirmed}}).
		OrderBy("bed_type", "check_in").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Booking
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListCheckedOut(ctx context.Context, now time.Time) ([]model.Booking, error) {
	q, args, err := qb.Select(bookingColumns...).
		From(bookingTableName).
		Where(sq.Eq{"status": model.StatusConfirmed}).
		Where(sq.LtOrEq{"check_out": now}).
		OrderBy("check_out").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Booking
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ListDueReminders(ctx context.Context, till time.Time) ([]model.Booking, error) {
	q, args, err := qb.Select(bookingColumns...).
		From(bookingTableName).
		Where(sq.Eq{"status": model.StatusPending}).
		Where(sq.LtOrEq{"check_in": till}).
		Where("reminder_sent_at is null").
		OrderBy("check_in").
		ToSql()
	if err != nil {
		return nil, err
	}
	var items []model.Booking
	if err := r.db.SelectContext(ctx, &items, q, args...); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) MarkReminderSent(ctx context.Context, bookingUid string, at time.Time) error {
	q, args, err := qb.Update(bookingTableName).
		Set("reminder_sent_at", at).
		Where(sq.Eq{"booking_uid": bookingUid}).
		Where("reminder_sent_at is null").
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	return err
}

func columns() string {
	s := bookingColumns[0]
	for _, c := range bookingColumns[1:] {
		s += ", " + c
	}
	return s
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ExclusionViolation
}

// IsTransient reports whether a repository error is worth retrying:
// timeouts and connection-level failures, never SQL or constraint errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.TooManyConnections
	}
	return false
}
