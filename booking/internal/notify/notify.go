package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/hostelhub/booking-service/booking/internal/model"
	"github.com/hostelhub/booking-service/pkg/kafka"
)

//go:generate mockgen -source=notify.go -destination=mocks/mock.go -package=notify_mocks

// Dispatcher receives booking lifecycle events. Delivery channel selection
// (email/SMS/telegram) is entirely the collaborator's responsibility; the
// engine only triggers each notification once per state transition.
type Dispatcher interface {
	SendBookingConfirmation(ctx context.Context, b model.Booking) error
	SendBookingCancellation(ctx context.Context, b model.Booking) error
	SendPaymentReminder(ctx context.Context, b model.Booking) error
}

// KafkaDispatcher publishes lifecycle events to per-kind topics; the
// notification workers downstream own rendering and delivery.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
}

func NewKafkaDispatcher(producer sarama.SyncProducer) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer}
}

func (d *KafkaDispatcher) SendBookingConfirmation(_ context.Context, b model.Booking) error {
	return d.publish(kafka.TopicBookingConfirmed, b)
}

func (d *KafkaDispatcher) SendBookingCancellation(_ context.Context, b model.Booking) error {
	return d.publish(kafka.TopicBookingCancelled, b)
}

func (d *KafkaDispatcher) SendPaymentReminder(_ context.Context, b model.Booking) error {
	return d.publish(kafka.TopicPaymentReminder, b)
}

func (d *KafkaDispatcher) publish(topic string, b model.Booking) error {
	data, err := json.Marshal(kafka.BookingEvent{
		BookingUid:     b.BookingUid,
		BedType:        string(b.BedType),
		GuestReference: b.GuestReference,
		CheckIn:        b.CheckIn,
		CheckOut:       b.CheckOut,
		Status:         string(b.Status),
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(b.BookingUid),
		Value: sarama.ByteEncoder(data),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
