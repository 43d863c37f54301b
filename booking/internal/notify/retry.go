package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hostelhub/booking-service/booking/internal/model"
)

// AsyncRetry decouples notification delivery from the booking transaction:
// each send returns immediately and is retried in the background a bounded
// number of times. A delivery failure never rolls back booking state.
type AsyncRetry struct {
	next     Dispatcher
	log      *zap.Logger
	attempts int
	backoff  time.Duration
	wg       sync.WaitGroup
}

func NewAsyncRetry(next Dispatcher, log *zap.Logger, attempts int, backoff time.Duration) *AsyncRetry {
	if attempts <= 0 {
		attempts = 5
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &AsyncRetry{
		next:     next,
		log:      log.Named("notify"),
		attempts: attempts,
		backoff:  backoff,
	}
}

func (d *AsyncRetry) SendBookingConfirmation(_ context.Context, b model.Booking) error {
	d.enqueue("confirmation", b, d.next.SendBookingConfirmation)
	return nil
}

func (d *AsyncRetry) SendBookingCancellation(_ context.Context, b model.Booking) error {
	d.enqueue("cancellation", b, d.next.SendBookingCancellation)
	return nil
}

func (d *AsyncRetry) SendPaymentReminder(_ context.Context, b model.Booking) error {
	d.enqueue("payment-reminder", b, d.next.SendPaymentReminder)
	return nil
}

func (d *AsyncRetry) enqueue(kind string, b model.Booking, send func(context.Context, model.Booking) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for i := 0; i < d.attempts; i++ {
			if i > 0 {
				time.Sleep(d.backoff * time.Duration(1<<uint(i-1)))
			}
			if err := send(context.Background(), b); err != nil {
				d.log.Warn("notification delivery failed",
					zap.String("kind", kind),
					zap.String("bookingUid", b.BookingUid),
					zap.Int("attempt", i+1),
					zap.Error(err))
				continue
			}
			return
		}
		d.log.Error("notification dropped after retries",
			zap.String("kind", kind),
			zap.String("bookingUid", b.BookingUid))
	}()
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (d *AsyncRetry) Wait() {
	d.wg.Wait()
}
