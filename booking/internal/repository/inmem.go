package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hostelhub/booking-service/booking/internal/errs"
	"github.com/hostelhub/booking-service/booking/internal/model"
)

// InMemory implements Repository for tests and local runs. Like the
// database exclusion constraint, it rejects writes that would leave two
// active bookings overlapping on the same bed type.
type InMemory struct {
	mu        sync.Mutex
	nextID    int
	bookings  map[string]model.Booking
	reminders map[string]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		bookings:  make(map[string]model.Booking),
		reminders: make(map[string]time.Time),
	}
}

func (r *InMemory) conflicts(b model.Booking) bool {
	if !b.Status.Active() {
		return false
	}
	for _, other := range r.bookings {
		if other.BookingUid == b.BookingUid || other.BedType != b.BedType || !other.Status.Active() {
			continue
		}
		if other.Overlaps(b.CheckIn, b.CheckOut) {
			return true
		}
	}
	return false
}

func (r *InMemory) Save(_ context.Context, b model.Booking) (model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts(b) {
		return model.Booking{}, errs.ErrOverlapConflict
	}
	r.nextID++
	b.ID = r.nextID
	r.bookings[b.BookingUid] = b
	return b, nil
}

func (r *InMemory) FindByUID(_ context.Context, bookingUid string) (model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingUid]
	if !ok {
		return model.Booking{}, errs.ErrNotFound
	}
	return b, nil
}

func (r *InMemory) FindOverlapping(_ context.Context, bedType model.BedType, checkIn, checkOut time.Time) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.Booking
	for _, b := range r.bookings {
		if b.BedType != bedType || b.Status == model.StatusCancelled {
			continue
		}
		if b.Overlaps(checkIn, checkOut) {
			items = append(items, b)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CheckIn.Before(items[j].CheckIn) })
	return items, nil
}

func (r *InMemory) Update(_ context.Context, b model.Booking) (model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.bookings[b.BookingUid]
	if !ok {
		return model.Booking{}, errs.ErrNotFound
	}
	if stored.Version != b.Version {
		return model.Booking{}, errs.ErrStaleVersion
	}
	if r.conflicts(b) {
		return model.Booking{}, errs.ErrOverlapConflict
	}
	b.ID = stored.ID
	b.Version = stored.Version + 1
	r.bookings[b.BookingUid] = b
	return b, nil
}

func (r *InMemory) Delete(_ context.Context, bookingUid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[bookingUid]; !ok {
		return errs.ErrNotFound
	}
	delete(r.bookings, bookingUid)
	return nil
}

func (r *InMemory) ListActive(_ context.Context) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.Booking
	for _, b := range r.bookings {
		if b.Status.Active() {
			items = append(items, b)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CheckIn.Before(items[j].CheckIn) })
	return items, nil
}

func (r *InMemory) ListCheckedOut(_ context.Context, now time.Time) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.Booking
	for _, b := range r.bookings {
		if b.Status == model.StatusConfirmed && !b.CheckOut.After(now) {
			items = append(items, b)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CheckOut.Before(items[j].CheckOut) })
	return items, nil
}

func (r *InMemory) ListDueReminders(_ context.Context, till time.Time) ([]model.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []model.Booking
	for _, b := range r.bookings {
		if b.Status != model.StatusPending || b.CheckIn.After(till) {
			continue
		}
		if _, sent := r.reminders[b.BookingUid]; sent {
			continue
		}
		items = append(items, b)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CheckIn.Before(items[j].CheckIn) })
	return items, nil
}

func (r *InMemory) MarkReminderSent(_ context.Context, bookingUid string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, sent := r.reminders[bookingUid]; !sent {
		r.reminders[bookingUid] = at
	}
	return nil
}
