package notify

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Handler delivers a single event
type Handler func(Event) error

// Queue buffers events in memory and fans them out to subscribed
// handlers on a background goroutine.
type Queue struct {
	items    chan Event
	done     chan struct{}
	stopped  chan struct{}
	maxSize  int
	started  bool
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []Handler
}

// NewQueue creates a queue holding at most bufferSize undelivered events
func NewQueue(bufferSize int, logger *logrus.Logger) *Queue {
	return &Queue{
		items:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]Handler, 0),
	}
}

// Push adds an event without blocking
func (q *Queue) Push(event Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dispatch pushes every event and logs the ones that had to be dropped
func (q *Queue) Dispatch(events ...Event) {
	for _, event := range events {
		if err := q.Push(event); err != nil {
			q.logger.WithError(err).WithFields(logrus.Fields{
				"event":     event.Type,
				"recipient": event.RecipientID,
			}).Warn("Dropped notification")
		}
	}
}

// Subscribe adds a handler that will be called for each event
func (q *Queue) Subscribe(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins delivering queued events
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.process()
}

func (q *Queue) process() {
	defer close(q.stopped)
	for {
		select {
		case <-q.done:
			// deliver what was accepted before Close
			for {
				select {
				case event := <-q.items:
					q.deliver(event)
				default:
					return
				}
			}
		case event := <-q.items:
			q.deliver(event)
		}
	}
}

func (q *Queue) deliver(event Event) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			q.logger.WithError(err).WithField("event", event.Type).Error("Handler failed to deliver notification")
		}
	}
}

// Close stops accepting events. If the queue was started, it waits for the
// already accepted events to be delivered.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	started := q.started
	close(q.done)
	q.mu.Unlock()

	if started {
		<-q.stopped
	}
	return nil
}

// Len returns the number of undelivered events
func (q *Queue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// LogHandler writes every event to the structured log
func LogHandler(logger *logrus.Logger) Handler {
	return func(event Event) error {
		logger.WithFields(logrus.Fields{
			"event":       event.Type,
			"recipient":   event.RecipientID,
			"listing_id":  event.ListingID,
			"interest_id": event.InterestID,
		}).Info(event.Message)
		return nil
	}
}
