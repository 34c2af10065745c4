package ussd

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"

	"mobilespo/internal/models"
)

// MemoryStore holds sessions in process memory. Sessions are cloned on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	cache   *cache.Cache
	timeout time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store with the given idle timeout
func NewMemoryStore(timeout time.Duration, opts ...StoreOption) *MemoryStore {
	o := applyStoreOptions(opts)
	return &MemoryStore{
		// janitor runs at the timeout interval; Get still checks expiry itself
		cache:   cache.New(timeout, timeout),
		timeout: timeout,
		now:     o.now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.UssdSession, bool, error) {
	item, ok := s.cache.Get(id)
	if !ok {
		return nil, false, nil
	}

	session := item.(*models.UssdSession)
	if session.Expired(s.now(), s.timeout) {
		s.cache.Delete(id)
		return nil, false, nil
	}

	return session.Clone(), true, nil
}

func (s *MemoryStore) Create(ctx context.Context, id, phoneNumber string) (*models.UssdSession, error) {
	session := models.NewUssdSession(id, phoneNumber, s.now())
	s.cache.Set(id, session.Clone(), s.timeout)
	return session, nil
}

func (s *MemoryStore) Save(ctx context.Context, session *models.UssdSession) error {
	s.cache.Set(session.ID, session.Clone(), s.timeout)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.cache.Delete(id)
	return nil
}

// Sweep removes every session idle for longer than the timeout
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	removed := 0

	for id, item := range s.cache.Items() {
		session := item.Object.(*models.UssdSession)
		if session.Expired(now, s.timeout) {
			s.cache.Delete(id)
			removed++
		}
	}
	s.cache.DeleteExpired()

	if removed > 0 {
		log.Printf("🧹 [USSD] Swept %d expired sessions (%d active)", removed, s.cache.ItemCount())
	}
	return removed, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*models.UssdSessionStats, error) {
	now := s.now()
	stats := models.NewUssdSessionStats()

	for _, item := range s.cache.Items() {
		session := item.Object.(*models.UssdSession)
		if !session.Expired(now, s.timeout) {
			stats.Add(session)
		}
	}
	return stats, nil
}
