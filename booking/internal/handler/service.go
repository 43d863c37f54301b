package handler

import (
	"context"
	"time"

	"github.com/hostelhub/booking-service/booking/internal/model"
)

//go:generate mockgen -source=service.go -destination=mocks/mock.go -package=service_mocks

type BookingService interface {
	CreateBooking(ctx context.Context, req model.CreateBookingRequest) (model.Booking, error)
	ConfirmBooking(ctx context.Context, bookingUid string, expectedVersion int) (model.Booking, error)
	UpdateBooking(ctx context.Context, bookingUid string, req model.UpdateBookingRequest) (model.Booking, error)
	CancelBooking(ctx context.Context, bookingUid string, expectedVersion int) (model.Booking, error)
	GetBooking(ctx context.Context, bookingUid string) (model.Booking, error)
	FindOverlapping(ctx context.Context, bedType model.BedType, checkIn, checkOut time.Time) ([]model.Booking, error)
}
