package availability

import (
	"sort"
	"sync"
	"time"

	"github.com/hostelhub/booking-service/booking/internal/model"
)

// Entry is the calendar projection of an active booking.
type Entry struct {
	BookingUid string
	CheckIn    time.Time
	CheckOut   time.Time
}

// Overlaps applies the half-open rule: [a1,a2) and [b1,b2) overlap iff
// a1 < b2 && b1 < a2.
func (e Entry) Overlaps(checkIn, checkOut time.Time) bool {
	return e.CheckIn.Before(checkOut) && checkIn.Before(e.CheckOut)
}

// Index keeps per-bed-type calendars of occupied intervals. It is a derived,
// rebuildable projection of the repository and never the source of truth.
// Calendars for distinct bed types can be read and mutated in parallel.
type Index struct {
	mu    sync.RWMutex
	types map[model.BedType]*calendar
	byUid map[string]model.BedType
}

// calendar entries are sorted by CheckIn. Because confirmed intervals for a
// bed type never overlap, the same order holds for CheckOut, which lets
// Query binary-search both bounds.
type calendar struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewIndex() *Index {
	return &Index{
		types: make(map[model.BedType]*calendar),
		byUid: make(map[string]model.BedType),
	}
}

func (ix *Index) calendarFor(bedType model.BedType, create bool) *calendar {
	ix.mu.RLock()
	cal, ok := ix.types[bedType]
	ix.mu.RUnlock()
	if ok || !create {
		return cal
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if cal, ok = ix.types[bedType]; !ok {
		cal = &calendar{}
		ix.types[bedType] = cal
	}
	return cal
}

// Query returns the booking uids whose intervals intersect
// [checkIn, checkOut) for the given bed type, ordered by check-in.
func (ix *Index) Query(bedType model.BedType, checkIn, checkOut time.Time) []string {
	cal := ix.calendarFor(bedType, false)
	if cal == nil {
		return nil
	}
	cal.mu.RLock()
	defer cal.mu.RUnlock()

	// first entry whose checkout is after the candidate check-in
	lo := sort.Search(len(cal.entries), func(i int) bool {
		return cal.entries[i].CheckOut.After(checkIn)
	})
	// first entry starting at or after the candidate check-out
	hi := sort.Search(len(cal.entries), func(i int) bool {
		return !cal.entries[i].CheckIn.Before(checkOut)
	})
	if lo >= hi {
		return nil
	}
	uids := make([]string, 0, hi-lo)
	for _, e := range cal.entries[lo:hi] {
		if e.Overlaps(checkIn, checkOut) {
			uids = append(uids, e.BookingUid)
		}
	}
	return uids
}

// Insert adds an entry. Apply only after the corresponding repository write
// has durably succeeded.
func (ix *Index) Insert(bedType model.BedType, e Entry) {
	cal := ix.calendarFor(bedType, true)
	cal.mu.Lock()
	pos := sort.Search(len(cal.entries), func(i int) bool {
		return cal.entries[i].CheckIn.After(e.CheckIn)
	})
	cal.entries = append(cal.entries, Entry{})
	copy(cal.entries[pos+1:], cal.entries[pos:])
	cal.entries[pos] = e
	cal.mu.Unlock()

	ix.mu.Lock()
	ix.byUid[e.BookingUid] = bedType
	ix.mu.Unlock()
}

// Remove drops the entry for bookingUid, if present.
func (ix *Index) Remove(bookingUid string) {
	ix.mu.Lock()
	bedType, ok := ix.byUid[bookingUid]
	if ok {
		delete(ix.byUid, bookingUid)
	}
	ix.mu.Unlock()
	if !ok {
		return
	}
	cal := ix.calendarFor(bedType, false)
	if cal == nil {
		return
	}
	cal.mu.Lock()
	defer cal.mu.Unlock()
	for i, e := range cal.entries {
		if e.BookingUid == bookingUid {
			cal.entries = append(cal.entries[:i], cal.entries[i+1:]...)
			return
		}
	}
}

// Replace swaps the entry for bookingUid with a new interval, possibly under
// a different bed type.
func (ix *Index) Replace(bookingUid string, bedType model.BedType, e Entry) {
	ix.Remove(bookingUid)
	ix.Insert(bedType, e)
}

// Rebuild resets the index from the repository's active bookings.
func (ix *Index) Rebuild(bookings []model.Booking) {
	ix.mu.Lock()
	ix.types = make(map[model.BedType]*calendar)
	ix.byUid = make(map[string]model.BedType)
	ix.mu.Unlock()
	for _, b := range bookings {
		ix.Insert(b.BedType, Entry{BookingUid: b.BookingUid, CheckIn: b.CheckIn, CheckOut: b.CheckOut})
	}
}

// Prune drops entries that checked out before the given bound. Completed
// stays keep blocking historical queries until then.
func (ix *Index) Prune(before time.Time) {
	ix.mu.RLock()
	cals := make(map[model.BedType]*calendar, len(ix.types))
	for bt, cal := range ix.types {
		cals[bt] = cal
	}
	ix.mu.RUnlock()

	for _, cal := range cals {
		cal.mu.Lock()
		kept := cal.entries[:0]
		var dropped []string
		for _, e := range cal.entries {
			if e.CheckOut.After(before) {
				kept = append(kept, e)
			} else {
				dropped = append(dropped, e.BookingUid)
			}
		}
		cal.entries = kept
		cal.mu.Unlock()

		if len(dropped) > 0 {
			ix.mu.Lock()
			for _, uid := range dropped {
				delete(ix.byUid, uid)
			}
			ix.mu.Unlock()
		}
	}
}
