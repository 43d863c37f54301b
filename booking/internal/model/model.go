package model

import (
	"time"
)

type BedType string

const (
	BedTypeDormBunk    BedType = "DORM_BUNK"
	BedTypeFemaleDorm  BedType = "FEMALE_DORM"
	BedTypePrivateRoom BedType = "PRIVATE_ROOM"
	BedTypeFamilyRoom  BedType = "FAMILY_ROOM"
)

func (b BedType) Valid() bool {
	switch b {
	case BedTypeDormBunk, BedTypeFemaleDorm, BedTypePrivateRoom, BedTypeFamilyRoom:
		return true
	}
	return false
}

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusConfirmed     Status = "CONFIRMED"
	StatusCancelled     Status = "CANCELLED"
	StatusCompletedStay Status = "COMPLETED_STAY"
)

// Active reports whether the booking occupies its interval on the calendar.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition enforces the lifecycle edges:
// Pending -> Confirmed -> CompletedStay, with Cancelled reachable from
// Pending or Confirmed. CompletedStay and Cancelled are terminal.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompletedStay || to == StatusCancelled
	}
	return false
}

type Booking struct {
	ID             int       `json:"-" db:"id"`
	BookingUid     string    `json:"bookingUid" db:"booking_uid"`
	BedType        BedType   `json:"bedType" db:"bed_type"`
	GuestReference string    `json:"guestReference" db:"guest_reference"`
	Status         Status    `json:"status" db:"status"`
	CheckIn        time.Time `json:"checkIn" db:"check_in"`
	CheckOut       time.Time `json:"checkOut" db:"check_out"`
	Version        int       `json:"version" db:"version"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Overlaps applies the half-open interval rule: [a1,a2) and [b1,b2) overlap
// iff a1 < b2 && b1 < a2. A check-out at the exact moment of another
// check-in is not a conflict.
func (b Booking) Overlaps(checkIn, checkOut time.Time) bool {
	return b.CheckIn.Before(checkOut) && checkIn.Before(b.CheckOut)
}

type CreateBookingRequest struct {
	BedType        BedType   `json:"bedType" validate:"required"`
	CheckIn        time.Time `json:"checkIn" validate:"required"`
	CheckOut       time.Time `json:"checkOut" validate:"required"`
	GuestReference string    `json:"guestReference" validate:"required"`
}

type UpdateBookingRequest struct {
	ExpectedVersion int       `json:"expectedVersion"`
	BedType         BedType   `json:"bedType" validate:"required"`
	CheckIn         time.Time `json:"checkIn" validate:"required"`
	CheckOut        time.Time `json:"checkOut" validate:"required"`
}

// VersionedRequest carries the optimistic concurrency token for lifecycle
// transitions whose body holds nothing else (confirm, cancel).
type VersionedRequest struct {
	ExpectedVersion int `json:"expectedVersion"`
}
