package queue

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
)

// ListingLocks hands out one mutex per listing. Entries are dropped once
// nobody holds or waits for them.
type ListingLocks struct {
	mu   sync.Mutex
	held map[uint]*listingLock
}

type listingLock struct {
	sync.Mutex
	refs int
}

func NewListingLocks() *ListingLocks {
	return &ListingLocks{held: make(map[uint]*listingLock)}
}

// Lock blocks until the listing is free and returns the matching unlock
func (l *ListingLocks) Lock(listingID uint) (unlock func()) {
	l.mu.Lock()
	lk, ok := l.held[listingID]
	if !ok {
		lk = &listingLock{}
		l.held[listingID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return func() {
		lk.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.held, listingID)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of listings currently locked or waited on
func (l *ListingLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// UnitOfWork is one listing-scoped command body
type UnitOfWork func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error

// Serializer runs units of work one listing at a time: an in-process lock,
// then a transaction that starts by locking the listing row. Events are
// dispatched only after commit.
type Serializer struct {
	db       *gorm.DB
	locks    *ListingLocks
	notifier notify.Dispatcher
}

func NewSerializer(db *gorm.DB, locks *ListingLocks, notifier notify.Dispatcher) *Serializer {
	return &Serializer{db: db, locks: locks, notifier: notifier}
}

func (s *Serializer) Run(ctx context.Context, listingID uint, work UnitOfWork) error {
	unlock := s.locks.Lock(listingID)
	defer unlock()

	out := &notify.Outbox{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		listing, err := database.LockListing(tx, listingID)
		if err != nil {
			return err
		}
		return work(tx, listing, out)
	})
	if err != nil {
		return err
	}

	out.Flush(s.notifier)
	return nil
}
