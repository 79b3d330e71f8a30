package broadcaster

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

type notification struct {
	recipients []string
	message    Message
}

// Dispatcher fans task notifications out to the live connections of their
// audience. Notify methods only enqueue; a fixed pool of workers started by
// Serve performs the delivery.
type Dispatcher struct {
	logger   *zap.Logger
	registry Registry
	metrics  *Metrics
	workers  int
	queue    chan notification
}

func NewDispatcher(
	logger *zap.Logger,
	registry Registry,
	metrics *Metrics,
	workers int,
	queueSize int,
) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	return &Dispatcher{
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		workers:  workers,
		queue:    make(chan notification, queueSize),
	}
}

func (d *Dispatcher) NotifyUpdated(taskId string, updatedBy string, audience []string) {
	d.enqueue(Audience(audience, updatedBy), NewMessage(TypeTaskUpdated, map[string]string{
		"taskId":    taskId,
		"updatedBy": updatedBy,
		"timestamp": NowMillis(),
	}))
}

// NotifyDeleted expects the audience to have been resolved before the task
// was deleted.
func (d *Dispatcher) NotifyDeleted(taskId string, deletedBy string, audience []string) {
	d.enqueue(Audience(audience, deletedBy), NewMessage(TypeTaskDeleted, map[string]string{
		"taskId":    taskId,
		"deletedBy": deletedBy,
		"timestamp": NowMillis(),
	}))
}

func (d *Dispatcher) NotifyShared(userId string, taskId string, sharedBy string) {
	d.enqueue([]string{userId}, NewMessage(TypeTaskShared, map[string]string{
		"taskId":    taskId,
		"sharedBy":  sharedBy,
		"timestamp": NowMillis(),
	}))
}

func (d *Dispatcher) NotifyShareRemoved(userId string, taskId string, removedBy string) {
	d.enqueue([]string{userId}, NewMessage(TypeShareRemoved, map[string]string{
		"taskId":    taskId,
		"removedBy": removedBy,
		"timestamp": NowMillis(),
	}))
}

func (d *Dispatcher) enqueue(recipients []string, message Message) bool {
	if len(recipients) == 0 {
		return true
	}

	select {
	case d.queue <- notification{recipients, message}:
		return true
	default:
		d.logger.Warn("notification queue is full, dropping notification",
			zap.String("type", message.Type),
			zap.Int("recipients", len(recipients)))

		d.metrics.IncNotificationsDropped(message.Type)

		return false
	}
}

// Serve runs the delivery workers until ctx is done.
func (d *Dispatcher) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < d.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case n := <-d.queue:
					d.Deliver(n.recipients, n.message)
				}
			}
		}()
	}

	wg.Wait()

	return ctx.Err()
}

// Deliver sends message to each recipient that has a live connection and
// returns the recipients it could not reach. A recipient whose send buffer
// is full is evicted.
func (d *Dispatcher) Deliver(recipients []string, message Message) []string {
	var unreachable []string

	for _, userId := range recipients {
		connection, ok := d.registry.Lookup(userId)
		if !ok {
			unreachable = append(unreachable, userId)
			d.metrics.IncNotifications(message.Type, OutcomeUnreachable)

			continue
		}

		err := connection.Send(message)
		if err != nil {
			if errors.Is(err, ErrSendBufferFull) {
				d.logger.Warn("connection send buffer is full, closing connection",
					zap.String("userId", userId),
					zap.String("connectionId", connection.Id))

				d.registry.Evict(connection, CloseSlowConsumer)
			}

			unreachable = append(unreachable, userId)
			d.metrics.IncNotifications(message.Type, OutcomeUnreachable)

			continue
		}

		d.metrics.IncNotifications(message.Type, OutcomeDelivered)
	}

	if len(unreachable) > 0 {
		d.logger.Debug("notification not delivered to some recipients",
			zap.String("type", message.Type),
			zap.Strings("unreachable", unreachable))
	}

	return unreachable
}

// Audience de-duplicates userIds and drops the acting user.
func Audience(userIds []string, actingUserId string) []string {
	seen := make(map[string]struct{}, len(userIds))
	audience := make([]string, 0, len(userIds))

	for _, userId := range userIds {
		if userId == "" || userId == actingUserId {
			continue
		}

		if _, ok := seen[userId]; ok {
			continue
		}

		seen[userId] = struct{}{}
		audience = append(audience, userId)
	}

	return audience
}
