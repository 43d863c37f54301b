package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hostelhub/booking-service/booking/internal/availability"
	"github.com/hostelhub/booking-service/booking/internal/errs"
	"github.com/hostelhub/booking-service/booking/internal/model"
	"github.com/hostelhub/booking-service/booking/internal/notify"
	"github.com/hostelhub/booking-service/booking/internal/repository"
	"github.com/hostelhub/booking-service/pkg/circuit_breaker"
)

type ConfirmationTrigger string

const (
	TriggerOnCreate          ConfirmationTrigger = "onCreate"
	TriggerOnExplicitConfirm ConfirmationTrigger = "onExplicitConfirm"
)

// Service orchestrates the booking lifecycle. It is the only writer of
// booking state and of the availability index. The index is a pre-check;
// the repository's exclusion constraint stays the authoritative overlap
// arbiter, so two racing creates resolve to exactly one winner even across
// service instances.
type Service struct {
	log        *zap.Logger
	repo       repository.Repository
	dispatcher notify.Dispatcher
	index      *availability.Index

	graceWindow  time.Duration
	trigger      ConfirmationTrigger
	retryMax     int
	retryBackoff time.Duration
	now          func() time.Time
	cb           circuit_breaker.CircuitBreaker

	mu    sync.Mutex
	locks map[model.BedType]*sync.Mutex
}

type Option func(*Service)

func WithGraceWindow(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.graceWindow = d
		}
	}
}

func WithConfirmationTrigger(t ConfirmationTrigger) Option {
	return func(s *Service) {
		if t == TriggerOnCreate || t == TriggerOnExplicitConfirm {
			s.trigger = t
		}
	}
}

func WithRetryPolicy(maxAttempts int, backoffBase time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.retryMax = maxAttempts
		}
		if backoffBase > 0 {
			s.retryBackoff = backoffBase
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithCircuitBreaker(cb circuit_breaker.CircuitBreaker) Option {
	return func(s *Service) {
		s.cb = cb
	}
}

func NewService(repo repository.Repository, dispatcher notify.Dispatcher, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:          log,
		repo:         repo,
		dispatcher:   dispatcher,
		index:        availability.NewIndex(),
		trigger:      TriggerOnExplicitConfirm,
		retryMax:     3,
		retryBackoff: 100 * time.Millisecond,
		now:          time.Now,
		locks:        make(map[model.BedType]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RebuildIndex refreshes the availability projection from the repository.
// Called on startup; the index is derived state and always reconcilable.
func (s *Service) RebuildIndex(ctx context.Context) error {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return err
	}
	s.index.Rebuild(active)
	return nil
}

func (s *Service) bedTypeLock(bt model.BedType) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[bt]
	if !ok {
		l = &sync.Mutex{}
		s.locks[bt] = l
	}
	return l
}

// lockBedTypes acquires per-bed-type locks in a stable order so an update
// moving a booking between bed types cannot deadlock with another update
// moving the opposite way.
func (s *Service) lockBedTypes(types ...model.BedType) func() {
	seen := make(map[model.BedType]struct{}, len(types))
	uniq := types[:0]
	for _, bt := range types {
		if _, ok := seen[bt]; !ok {
			seen[bt] = struct{}{}
			uniq = append(uniq, bt)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	for _, bt := range uniq {
		s.bedTypeLock(bt).Lock()
	}
	locked := append([]model.BedType(nil), uniq...)
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			s.bedTypeLock(locked[i]).Unlock()
		}
	}
}

func (s *Service) validateInterval(bedType model.BedType, checkIn, checkOut time.Time) error {
	if !bedType.Valid() {
		return errs.ErrValidation
	}
	if checkIn.IsZero() || checkOut.IsZero() || !checkIn.Before(checkOut) {
		return errs.ErrValidation
	}
	if checkIn.Before(s.now().Add(-s.graceWindow)) {
		return errs.ErrValidation
	}
	return nil
}

// CreateBooking validates the interval, checks the calendar and persists a
// new booking. With the onCreate trigger the booking is confirmed right
// away and the confirmation notification fires; otherwise it stays pending
// until an explicit confirm.
func (s *Service) CreateBooking(ctx context.Context, req model.CreateBookingRequest) (model.Booking, error) {
	if err := s.validateInterval(req.BedType, req.CheckIn, req.CheckOut); err != nil {
		return model.Booking{}, err
	}

	unlock := s.lockBedTypes(req.BedType)
	defer unlock()

	if conflicts := s.index.Query(req.BedType, req.CheckIn, req.CheckOut); len(conflicts) > 0 {
		return model.Booking{}, errs.ErrOverlapConflict
	}

	status := model.StatusPending
	if s.trigger == TriggerOnCreate {
		status = model.StatusConfirmed
	}
	now := s.now().UTC()
	b := model.Booking{
		BookingUid:     uuid.NewString(),
		BedType:        req.BedType,
		GuestReference: req.GuestReference,
		Status:         status,
		CheckIn:        req.CheckIn,
		CheckOut:       req.CheckOut,
		Version:        0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	saved, err := s.persist(ctx, b, b.Version, func(ctx context.Context) (model.Booking, error) {
		return s.repo.Save(ctx, b)
	})
	if err != nil {
		return model.Booking{}, err
	}

	s.index.Insert(saved.BedType, availability.Entry{
		BookingUid: saved.BookingUid,
		CheckIn:    saved.CheckIn,
		CheckOut:   saved.CheckOut,
	})

	if s.trigger == TriggerOnCreate {
		s.notifyConfirmation(ctx, saved)
	}
	return saved, nil
}

// ConfirmBooking moves a pending booking to confirmed and fires the
// confirmation notification exactly once for the transition.
func (s *Service) ConfirmBooking(ctx context.Context, bookingUid string, expectedVersion int) (model.Booking, error) {
	b, err := s.getForUpdate(ctx, bookingUid, expectedVersion)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.Status.CanTransition(model.StatusConfirmed) {
		return model.Booking{}, errs.ErrTransition
	}

	unlock := s.lockBedTypes(b.BedType)
	defer unlock()

	if s.conflictsExcludingSelf(b.BedType, b.CheckIn, b.CheckOut, b.BookingUid) {
		return model.Booking{}, errs.ErrOverlapConflict
	}

	b.Status = model.StatusConfirmed
	b.UpdatedAt = s.now().UTC()
	updated, err := s.persist(ctx, b, b.Version+1, func(ctx context.Context) (model.Booking, error) {
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return model.Booking{}, err
	}

	s.notifyConfirmation(ctx, updated)
	return updated, nil
}

// UpdateBooking replaces the interval (and possibly bed type) keeping the
// status. The booking's own current entry never counts as a conflict, so
// shrinking or shifting within one's own span always succeeds.
func (s *Service) UpdateBooking(ctx context.Context, bookingUid string, req model.UpdateBookingRequest) (model.Booking, error) {
	if err := s.validateInterval(req.BedType, req.CheckIn, req.CheckOut); err != nil {
		return model.Booking{}, err
	}
	b, err := s.getForUpdate(ctx, bookingUid, req.ExpectedVersion)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.Status.Active() {
		return model.Booking{}, errs.ErrTransition
	}

	unlock := s.lockBedTypes(b.BedType, req.BedType)
	defer unlock()

	if s.conflictsExcludingSelf(req.BedType, req.CheckIn, req.CheckOut, b.BookingUid) {
		return model.Booking{}, errs.ErrOverlapConflict
	}

	b.BedType = req.BedType
	b.CheckIn = req.CheckIn
	b.CheckOut = req.CheckOut
	b.UpdatedAt = s.now().UTC()
	updated, err := s.persist(ctx, b, b.Version+1, func(ctx context.Context) (model.Booking, error) {
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return model.Booking{}, err
	}

	s.index.Replace(updated.BookingUid, updated.BedType, availability.Entry{
		BookingUid: updated.BookingUid,
		CheckIn:    updated.CheckIn,
		CheckOut:   updated.CheckOut,
	})
	return updated, nil
}

// CancelBooking is always permitted for active bookings. The calendar
// entry is freed, so re-creating the exact former interval succeeds.
func (s *Service) CancelBooking(ctx context.Context, bookingUid string, expectedVersion int) (model.Booking, error) {
	b, err := s.getForUpdate(ctx, bookingUid, expectedVersion)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.Status.CanTransition(model.StatusCancelled) {
		return model.Booking{}, errs.ErrTransition
	}

	unlock := s.lockBedTypes(b.BedType)
	defer unlock()

	b.Status = model.StatusCancelled
	b.UpdatedAt = s.now().UTC()
	updated, err := s.persist(ctx, b, b.Version+1, func(ctx context.Context) (model.Booking, error) {
		return s.repo.Update(ctx, b)
	})
	if err != nil {
		return model.Booking{}, err
	}

	s.index.Remove(updated.BookingUid)

	if err := s.dispatcher.SendBookingCancellation(ctx, updated); err != nil {
		s.log.Warn("cancellation notify", zap.String("bookingUid", updated.BookingUid), zap.Error(err))
	}
	return updated, nil
}

// CompleteStay transitions a confirmed booking whose check-out has been
// reached. The index entry is kept until pruned so historical queries keep
// seeing the occupied interval.
func (s *Service) CompleteStay(ctx context.Context, bookingUid string) (model.Booking, error) {
	b, err := s.getBooking(ctx, bookingUid)
	if err != nil {
		return model.Booking{}, err
	}
	if !b.Status.CanTransition(model.StatusCompletedStay) {
		return model.Booking{}, errs.ErrTransition
	}
	if s.now().Before(b.CheckOut) {
		return model.Booking{}, errs.ErrTransition
	}

	b.Status = model.StatusCompletedStay
	b.UpdatedAt = s.now().UTC()
	return s.persist(ctx, b, b.Version+1, func(ctx context.Context) (model.Booking, error) {
		return s.repo.Update(ctx, b)
	})
}

// FindOverlapping is the read-only availability check: bookings of the bed
// type intersecting [checkIn, checkOut), ordered by check-in, cancelled
// excluded. Pure read against the source of truth, restartable at will.
func (s *Service) FindOverlapping(ctx context.Context, bedType model.BedType, checkIn, checkOut time.Time) ([]model.Booking, error) {
	if !bedType.Valid() || !checkIn.Before(checkOut) {
		return nil, errs.ErrValidation
	}
	var items []model.Booking
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		items, err = s.repo.FindOverlapping(ctx, bedType, checkIn, checkOut)
		return err
	})
	return items, err
}

func (s *Service) GetBooking(ctx context.Context, bookingUid string) (model.Booking, error) {
	return s.getBooking(ctx, bookingUid)
}

// SweepCompleted promotes confirmed bookings past their check-out and
// prunes calendar entries that can no longer conflict with any acceptable
// request.
func (s *Service) SweepCompleted(ctx context.Context) error {
	due, err := s.repo.ListCheckedOut(ctx, s.now())
	if err != nil {
		return err
	}
	for _, b := range due {
		if _, err := s.CompleteStay(ctx, b.BookingUid); err != nil {
			s.log.Warn("complete stay sweep", zap.String("bookingUid", b.BookingUid), zap.Error(err))
		}
	}
	s.index.Prune(s.now().Add(-s.graceWindow))
	return nil
}

// SweepReminders sends the payment reminder for pending bookings whose
// check-in is inside the lead window. The sent marker is written before
// dispatching, so a crashed sweep can at worst skip, never double-send.
func (s *Service) SweepReminders(ctx context.Context, lead time.Duration) error {
	due, err := s.repo.ListDueReminders(ctx, s.now().Add(lead))
	if err != nil {
		return err
	}
	for _, b := range due {
		if err := s.repo.MarkReminderSent(ctx, b.BookingUid, s.now().UTC()); err != nil {
			s.log.Warn("mark reminder", zap.String("bookingUid", b.BookingUid), zap.Error(err))
			continue
		}
		if err := s.dispatcher.SendPaymentReminder(ctx, b); err != nil {
			s.log.Warn("payment reminder notify", zap.String("bookingUid", b.BookingUid), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) notifyConfirmation(ctx context.Context, b model.Booking) {
	if err := s.dispatcher.SendBookingConfirmation(ctx, b); err != nil {
		s.log.Warn("confirmation notify", zap.String("bookingUid", b.BookingUid), zap.Error(err))
	}
}

func (s *Service) conflictsExcludingSelf(bedType model.BedType, checkIn, checkOut time.Time, selfUid string) bool {
	for _, uid := range s.index.Query(bedType, checkIn, checkOut) {
		if uid != selfUid {
			return true
		}
	}
	return false
}

func (s *Service) getBooking(ctx context.Context, bookingUid string) (model.Booking, error) {
	var b model.Booking
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.FindByUID(ctx, bookingUid)
		return err
	})
	return b, err
}

func (s *Service) getForUpdate(ctx context.Context, bookingUid string, expectedVersion int) (model.Booking, error) {
	b, err := s.getBooking(ctx, bookingUid)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Version != expectedVersion {
		return model.Booking{}, errs.ErrStaleVersion
	}
	return b, nil
}

// persist runs a repository write under the retry/breaker policy. When the
// outcome is unknown (deadline hit mid-write) the booking is re-read and
// compared against the intended record: success is reported only for a
// visibly committed write, never assumed.
func (s *Service) persist(ctx context.Context, want model.Booking, wantVersion int, write func(context.Context) (model.Booking, error)) (model.Booking, error) {
	var b model.Booking
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		b, err = write(ctx)
		return err
	})
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return model.Booking{}, err
	}
	readCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored, rerr := s.repo.FindByUID(readCtx, want.BookingUid)
	if rerr == nil && committed(stored, want, wantVersion) {
		return stored, nil
	}
	return model.Booking{}, errs.ErrRepositoryUnavailable
}

// committed reports whether the stored row reflects the interrupted write.
// An unchanged version means the write never landed; a row diverging from
// the intended record belongs to someone else's write.
func committed(stored, want model.Booking, wantVersion int) bool {
	return stored.Version == wantVersion &&
		stored.Status == want.Status &&
		stored.BedType == want.BedType &&
		stored.CheckIn.Equal(want.CheckIn) &&
		stored.CheckOut.Equal(want.CheckOut)
}

// withRetry retries transient repository failures a bounded number of
// times with exponential backoff. Conflict and validation errors surface
// immediately. An open breaker reports the repository as unavailable.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryBackoff * time.Duration(1<<uint(attempt-1))):
			}
		}
		call := func() error { return fn(ctx) }
		if s.cb != nil {
			lastErr = s.cb.Call(call)
		} else {
			lastErr = call()
		}
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, circuit_breaker.ErrOpenCB) {
			return errs.ErrRepositoryUnavailable
		}
		if !repository.IsTransient(lastErr) {
			return lastErr
		}
		s.log.Warn("transient repository error", zap.Int("attempt", attempt+1), zap.Error(lastErr))
	}
	if errors.Is(lastErr, context.DeadlineExceeded) || errors.Is(lastErr, context.Canceled) {
		return lastErr
	}
	if repository.IsTransient(lastErr) {
		return errs.ErrRepositoryUnavailable
	}
	return lastErr
}
