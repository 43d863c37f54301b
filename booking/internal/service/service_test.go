package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hostelhub/booking-service/booking/internal/errs"
	"github.com/hostelhub/booking-service/booking/internal/model"
	"github.com/hostelhub/booking-service/booking/internal/repository"
	repo_mocks "github.com/hostelhub/booking-service/booking/internal/repository/mocks"
	"github.com/hostelhub/booking-service/booking/internal/service"
)

var testNow = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

func at(h int) time.Time {
	return time.Date(2026, 9, 1, h, 0, 0, 0, time.UTC)
}

type fakeDispatcher struct {
	mu            sync.Mutex
	confirmations []string
	cancellations []string
	reminders     []string
}

func (d *fakeDispatcher) SendBookingConfirmation(_ context.Context, b model.Booking) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmations = append(d.confirmations, b.BookingUid)
	return nil
}

func (d *fakeDispatcher) SendBookingCancellation(_ context.Context, b model.Booking) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancellations = append(d.cancellations, b.BookingUid)
	return nil
}

func (d *fakeDispatcher) SendPaymentReminder(_ context.Context, b model.Booking) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reminders = append(d.reminders, b.BookingUid)
	return nil
}

func newTestService(t *testing.T, opts ...service.Option) (*service.Service, *repository.InMemory, *fakeDispatcher) {
	t.Helper()
	repo := repository.NewInMemory()
	dispatcher := &fakeDispatcher{}
	log := zap.NewExample().Named("test")
	base := []service.Option{service.WithClock(func() time.Time { return testNow })}
	svc := service.NewService(repo, dispatcher, log, append(base, opts...)...)
	return svc, repo, dispatcher
}

func createReq(in, out int) model.CreateBookingRequest {
	return model.CreateBookingRequest{
		BedType:        model.BedTypeDormBunk,
		CheckIn:        at(in),
		CheckOut:       at(out),
		GuestReference: "guest-1",
	}
}

func TestService_CreateBooking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates pending booking", func(t *testing.T) {
		t.Parallel()
		svc, _, dispatcher := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		require.NotEmpty(t, b.BookingUid)
		require.Equal(t, model.StatusPending, b.Status)
		require.Equal(t, 0, b.Version)
		require.Empty(t, dispatcher.confirmations)
	})

	t.Run("touching endpoints are not a conflict", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		_, err = svc.CreateBooking(ctx, createReq(12, 14))
		require.NoError(t, err)
	})

	t.Run("overlap fails", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		_, err = svc.CreateBooking(ctx, createReq(11, 13))
		require.ErrorIs(t, err, errs.ErrOverlapConflict)
	})

	t.Run("other bed type does not conflict", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		req := createReq(10, 12)
		req.BedType = model.BedTypePrivateRoom
		_, err = svc.CreateBooking(ctx, req)
		require.NoError(t, err)
	})

	t.Run("rejects inverted interval", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CreateBooking(ctx, createReq(12, 10))
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("rejects unknown bed type", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		req := createReq(10, 12)
		req.BedType = "WATERBED"
		_, err := svc.CreateBooking(ctx, req)
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("rejects past check-in without grace", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CreateBooking(ctx, createReq(8, 12))
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("grace window admits a recent check-in", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t, service.WithGraceWindow(2*time.Hour))
		_, err := svc.CreateBooking(ctx, createReq(8, 12))
		require.NoError(t, err)
	})
}

func TestService_ConfirmationTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("onCreate confirms and notifies immediately", func(t *testing.T) {
		t.Parallel()
		svc, _, dispatcher := newTestService(t, service.WithConfirmationTrigger(service.TriggerOnCreate))
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		require.Equal(t, model.StatusConfirmed, b.Status)
		require.Equal(t, []string{b.BookingUid}, dispatcher.confirmations)
	})

	t.Run("onExplicitConfirm waits for confirm", func(t *testing.T) {
		t.Parallel()
		svc, _, dispatcher := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		require.Empty(t, dispatcher.confirmations)

		confirmed, err := svc.ConfirmBooking(ctx, b.BookingUid, b.Version)
		require.NoError(t, err)
		require.Equal(t, model.StatusConfirmed, confirmed.Status)
		require.Equal(t, b.Version+1, confirmed.Version)
		require.Equal(t, []string{b.BookingUid}, dispatcher.confirmations)

		// already confirmed, the transition is spent
		_, err = svc.ConfirmBooking(ctx, b.BookingUid, confirmed.Version)
		require.ErrorIs(t, err, errs.ErrTransition)
		require.Len(t, dispatcher.confirmations, 1)
	})
}

func TestService_UpdateBooking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sub-interval of own span succeeds", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 14))
		require.NoError(t, err)

		updated, err := svc.UpdateBooking(ctx, b.BookingUid, model.UpdateBookingRequest{
			ExpectedVersion: b.Version,
			BedType:         b.BedType,
			CheckIn:         at(11),
			CheckOut:        at(13),
		})
		require.NoError(t, err)
		require.Equal(t, at(11), updated.CheckIn)
		require.Equal(t, b.Version+1, updated.Version)
	})

	t.Run("overlap with another booking fails", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		b, err := svc.CreateBooking(ctx, createReq(14, 16))
		require.NoError(t, err)

		_, err = svc.UpdateBooking(ctx, b.BookingUid, model.UpdateBookingRequest{
			ExpectedVersion: b.Version,
			BedType:         b.BedType,
			CheckIn:         at(11),
			CheckOut:        at(15),
		})
		require.ErrorIs(t, err, errs.ErrOverlapConflict)
	})

	t.Run("stale version never overwrites", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)

		_, err = svc.UpdateBooking(ctx, b.BookingUid, model.UpdateBookingRequest{
			ExpectedVersion: b.Version + 7,
			BedType:         b.BedType,
			CheckIn:         at(11),
			CheckOut:        at(13),
		})
		require.ErrorIs(t, err, errs.ErrStaleVersion)

		stored, err := svc.GetBooking(ctx, b.BookingUid)
		require.NoError(t, err)
		require.Equal(t, at(10), stored.CheckIn)
	})

	t.Run("cancelled booking cannot be updated", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		cancelled, err := svc.CancelBooking(ctx, b.BookingUid, b.Version)
		require.NoError(t, err)

		_, err = svc.UpdateBooking(ctx, b.BookingUid, model.UpdateBookingRequest{
			ExpectedVersion: cancelled.Version,
			BedType:         b.BedType,
			CheckIn:         at(10),
			CheckOut:        at(12),
		})
		require.ErrorIs(t, err, errs.ErrTransition)
	})

	t.Run("moving bed type frees the old calendar", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)

		_, err = svc.UpdateBooking(ctx, b.BookingUid, model.UpdateBookingRequest{
			ExpectedVersion: b.Version,
			BedType:         model.BedTypePrivateRoom,
			CheckIn:         at(10),
			CheckOut:        at(12),
		})
		require.NoError(t, err)

		_, err = svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
	})
}

func TestService_CancelBooking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancel frees the interval for re-creation", func(t *testing.T) {
		t.Parallel()
		svc, _, dispatcher := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)

		cancelled, err := svc.CancelBooking(ctx, b.BookingUid, b.Version)
		require.NoError(t, err)
		require.Equal(t, model.StatusCancelled, cancelled.Status)
		require.Equal(t, []string{b.BookingUid}, dispatcher.cancellations)

		_, err = svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
	})

	t.Run("cancel with stale version fails", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		_, err = svc.CancelBooking(ctx, b.BookingUid, b.Version+1)
		require.ErrorIs(t, err, errs.ErrStaleVersion)
	})

	t.Run("cancel is terminal", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		cancelled, err := svc.CancelBooking(ctx, b.BookingUid, b.Version)
		require.NoError(t, err)
		_, err = svc.CancelBooking(ctx, b.BookingUid, cancelled.Version)
		require.ErrorIs(t, err, errs.ErrTransition)
	})

	t.Run("cancel unknown booking", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t)
		_, err := svc.CancelBooking(ctx, "11111111-2222-3333-4444-555555555555", 0)
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestService_ConcurrentCreate(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t)

	const workers = 8
	var g errgroup.Group
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			_, err := svc.CreateBooking(context.Background(), createReq(10, 12))
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, errs.ErrOverlapConflict)
			conflicts++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, workers-1, conflicts)

	// the invariant holds after the race: a single active booking
	items, err := svc.FindOverlapping(context.Background(), model.BedTypeDormBunk, at(10), at(12))
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestService_FindOverlapping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	b1, err := svc.CreateBooking(ctx, createReq(14, 16))
	require.NoError(t, err)
	b2, err := svc.CreateBooking(ctx, createReq(10, 12))
	require.NoError(t, err)
	b3, err := svc.CreateBooking(ctx, createReq(12, 14))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, b3.BookingUid, b3.Version)
	require.NoError(t, err)

	items, err := svc.FindOverlapping(ctx, model.BedTypeDormBunk, at(9), at(17))
	require.NoError(t, err)
	require.Len(t, items, 2)
	// ordered by check-in, cancelled excluded
	require.Equal(t, b2.BookingUid, items[0].BookingUid)
	require.Equal(t, b1.BookingUid, items[1].BookingUid)

	_, err = svc.FindOverlapping(ctx, "WATERBED", at(9), at(17))
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestService_CompleteStay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("before check-out is rejected", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t, service.WithConfirmationTrigger(service.TriggerOnCreate))
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		_, err = svc.CompleteStay(ctx, b.BookingUid)
		require.ErrorIs(t, err, errs.ErrTransition)
	})

	t.Run("sweep promotes checked-out stays", func(t *testing.T) {
		t.Parallel()
		clock := struct {
			mu  sync.Mutex
			now time.Time
		}{now: testNow}
		now := func() time.Time {
			clock.mu.Lock()
			defer clock.mu.Unlock()
			return clock.now
		}
		svc, _, _ := newTestService(t,
			service.WithConfirmationTrigger(service.TriggerOnCreate),
			service.WithClock(now))

		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)

		clock.mu.Lock()
		clock.now = at(13)
		clock.mu.Unlock()

		require.NoError(t, svc.SweepCompleted(ctx))
		stored, err := svc.GetBooking(ctx, b.BookingUid)
		require.NoError(t, err)
		require.Equal(t, model.StatusCompletedStay, stored.Status)
	})

	t.Run("pending cannot complete", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestService(t, service.WithClock(func() time.Time { return at(20) }),
			service.WithGraceWindow(24*time.Hour))
		b, err := svc.CreateBooking(ctx, createReq(10, 12))
		require.NoError(t, err)
		_, err = svc.CompleteStay(ctx, b.BookingUid)
		require.ErrorIs(t, err, errs.ErrTransition)
	})
}

func TestService_SweepReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, dispatcher := newTestService(t)

	b, err := svc.CreateBooking(ctx, createReq(10, 12))
	require.NoError(t, err)

	require.NoError(t, svc.SweepReminders(ctx, 6*time.Hour))
	require.Equal(t, []string{b.BookingUid}, dispatcher.reminders)

	// a second sweep never re-sends
	require.NoError(t, svc.SweepReminders(ctx, 6*time.Hour))
	require.Len(t, dispatcher.reminders, 1)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestService_RetryTransient(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()

	repo := repo_mocks.NewMockRepository(c)
	dispatcher := &fakeDispatcher{}
	log := zap.NewExample().Named("test")
	svc := service.NewService(repo, dispatcher, log,
		service.WithClock(func() time.Time { return testNow }),
		service.WithRetryPolicy(3, time.Millisecond))

	t.Run("transient save recovers", func(t *testing.T) {
		gomock.InOrder(
			repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(model.Booking{}, timeoutError{}),
			repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(model.Booking{}, timeoutError{}),
			repo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, b model.Booking) (model.Booking, error) {
					b.ID = 1
					return b, nil
				}),
		)
		b, err := svc.CreateBooking(context.Background(), createReq(10, 12))
		require.NoError(t, err)
		require.Equal(t, model.StatusPending, b.Status)
	})

	t.Run("exhausted retries surface as unavailable", func(t *testing.T) {
		repo.EXPECT().Save(gomock.Any(), gomock.Any()).
			Return(model.Booking{}, timeoutError{}).
			Times(3)
		_, err := svc.CreateBooking(context.Background(), createReq(14, 16))
		require.ErrorIs(t, err, errs.ErrRepositoryUnavailable)
	})

	t.Run("conflict is not retried", func(t *testing.T) {
		repo.EXPECT().Save(gomock.Any(), gomock.Any()).
			Return(model.Booking{}, errs.ErrOverlapConflict).
			Times(1)
		_, err := svc.CreateBooking(context.Background(), createReq(17, 18))
		require.ErrorIs(t, err, errs.ErrOverlapConflict)
	})
}

func TestService_InterruptedWrite(t *testing.T) {
	t.Parallel()

	confirmedBooking := func() model.Booking {
		return model.Booking{
			ID:             1,
			BookingUid:     "2f9c2fd4-0d1a-4a6e-9d3c-1f8f54c2a9b0",
			BedType:        model.BedTypeDormBunk,
			GuestReference: "guest-1",
			Status:         model.StatusConfirmed,
			CheckIn:        at(10),
			CheckOut:       at(12),
			Version:        1,
			CreatedAt:      testNow,
			UpdatedAt:      testNow,
		}
	}

	newSvc := func(t *testing.T) (*service.Service, *repo_mocks.MockRepository, *fakeDispatcher) {
		t.Helper()
		c := gomock.NewController(t)
		t.Cleanup(c.Finish)
		repo := repo_mocks.NewMockRepository(c)
		dispatcher := &fakeDispatcher{}
		svc := service.NewService(repo, dispatcher, zap.NewExample().Named("test"),
			service.WithClock(func() time.Time { return testNow }),
			service.WithRetryPolicy(3, 200*time.Millisecond))
		return svc, repo, dispatcher
	}

	t.Run("cancel not visibly committed stays an error", func(t *testing.T) {
		t.Parallel()
		svc, repo, dispatcher := newSvc(t)
		b := confirmedBooking()

		// the write times out and the re-read still sees the confirmed row:
		// the caller must not be told the cancellation happened
		gomock.InOrder(
			repo.EXPECT().FindByUID(gomock.Any(), b.BookingUid).Return(b, nil),
			repo.EXPECT().Update(gomock.Any(), gomock.Any()).Return(model.Booking{}, timeoutError{}),
			repo.EXPECT().FindByUID(gomock.Any(), b.BookingUid).Return(b, nil),
		)

		repo.EXPECT().FindByUID(gomock.Any(), b.BookingUid).Return(b, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := svc.CancelBooking(ctx, b.BookingUid, b.Version)
		require.ErrorIs(t, err, errs.ErrRepositoryUnavailable)
		require.Empty(t, dispatcher.cancellations)

		stored, err := svc.GetBooking(context.Background(), b.BookingUid)
		require.NoError(t, err)
		require.Equal(t, model.StatusConfirmed, stored.Status)
	})

	t.Run("re-read showing the committed cancel succeeds", func(t *testing.T) {
		t.Parallel()
		svc, repo, dispatcher := newSvc(t)
		b := confirmedBooking()
		done := b
		done.Status = model.StatusCancelled
		done.Version = b.Version + 1

		gomock.InOrder(
			repo.EXPECT().FindByUID(gomock.Any(), b.BookingUid).Return(b, nil),
			repo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(
				func(ctx context.Context, _ model.Booking) (model.Booking, error) {
					<-ctx.Done()
					return model.Booking{}, ctx.Err()
				}),
			repo.EXPECT().FindByUID(gomock.Any(), b.BookingUid).Return(done, nil),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		cancelled, err := svc.CancelBooking(ctx, b.BookingUid, b.Version)
		require.NoError(t, err)
		require.Equal(t, model.StatusCancelled, cancelled.Status)
		require.Equal(t, done.Version, cancelled.Version)
		require.Equal(t, []string{b.BookingUid}, dispatcher.cancellations)
	})
}
