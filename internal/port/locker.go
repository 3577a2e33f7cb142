package port

import (
	"context"
	"time"
)

type Locker interface {
	// TryLock acquires key for ttl, returns false if someone else holds it
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
