package ussd

import (
	"context"
	"time"

	"mobilespo/internal/models"
)

// Store keeps USSD dialog sessions keyed by gateway session id. Get never
// returns a session idle for longer than the store's timeout: expired sessions
// are reported absent and removed.
type Store interface {
	Get(ctx context.Context, id string) (*models.UssdSession, bool, error)
	Create(ctx context.Context, id, phoneNumber string) (*models.UssdSession, error)
	Save(ctx context.Context, session *models.UssdSession) error
	Delete(ctx context.Context, id string) error
	Sweep(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*models.UssdSessionStats, error)
}

// StoreOption configures a session store
type StoreOption func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithStoreClock overrides the clock used for expiry checks
func WithStoreClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.now = now
	}
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
