// Package cache deduplicates expensive computations by fingerprint, within
// a process through singleflight and across processes through an atomic
// claim in a shared Store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"documind/internal/logger"
	"documind/models"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrComputeFailed is returned to callers that waited on another owner's
// computation which then failed.
var ErrComputeFailed = errors.New("cached computation failed")

// Store holds cache entries shared between processes.
type Store interface {
	// Get returns nil when the fingerprint is unknown. Undecodable entries
	// yield an error wrapping models.ErrCacheCorruption.
	Get(ctx context.Context, fp string) (*models.CacheEntry, error)
	// Claim atomically stores an in-progress entry if none exists.
	Claim(ctx context.Context, fp, owner string, ttl time.Duration) (bool, error)
	// Renew extends owner's in-progress claim to ttl. It reports false when
	// the claim is gone or held by someone else.
	Renew(ctx context.Context, fp, owner string, ttl time.Duration) (bool, error)
	// Publish overwrites the entry with its completed form.
	Publish(ctx context.Context, entry *models.CacheEntry, ttl time.Duration) error
	// Fail releases a claim and leaves a short-lived failure record.
	Fail(ctx context.Context, fp, reason string, ttl time.Duration) error
	// Failure returns the failure record, if any.
	Failure(ctx context.Context, fp string) (string, bool, error)
	Delete(ctx context.Context, fp string) error
}

type Options struct {
	TTL          time.Duration
	ClaimTTL     time.Duration
	FailureTTL   time.Duration
	PollInterval time.Duration
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = 2 * time.Minute
	}
	if o.FailureTTL <= 0 {
		o.FailureTTL = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
}

type Cache struct {
	store Store
	opts  Options
	owner string
	group singleflight.Group
}

func New(store Store, opts Options) *Cache {
	opts.defaults()
	return &Cache{store: store, opts: opts, owner: uuid.NewString()}
}

type outcome struct {
	payload []byte
	hit     bool
}

// GetOrCompute returns the cached payload for fp, or runs compute exactly
// once across all concurrent callers sharing the store and publishes its
// result. compute must return a JSON document. hit reports whether the
// payload came from a computation this caller did not run.
//
// Each caller waits under its own ctx. A shared computation that ends
// because its leader's ctx was done is not reported to the other callers;
// they start over instead.
func (c *Cache) GetOrCompute(ctx context.Context, fp string, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	for {
		var leader atomic.Bool
		ch := c.group.DoChan(fp, func() (any, error) {
			leader.Store(true)
			out, err := c.resolve(ctx, fp, compute)
			if err != nil && ctx.Err() != nil {
				return out, &abandonedError{err: err}
			}
			return out, err
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			if !leader.Load() {
				return nil, false, ctx.Err()
			}
			// compute runs under this ctx and is already unwinding
			res = <-ch
		}

		var abandoned *abandonedError
		if errors.As(res.Err, &abandoned) {
			switch {
			case leader.Load():
				return nil, false, abandoned.err
			case ctx.Err() != nil:
				return nil, false, ctx.Err()
			}
			continue
		}
		if res.Err != nil {
			return nil, false, res.Err
		}
		out := res.Val.(outcome)
		return out.payload, out.hit || !leader.Load(), nil
	}
}

// abandonedError wraps the result of a computation cut short by the
// leading caller's own cancellation.
type abandonedError struct{ err error }

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

// Invalidate removes a completed entry, for callers that could not decode
// what they were given.
func (c *Cache) Invalidate(ctx context.Context, fp string) error {
	c.group.Forget(fp)
	return c.store.Delete(ctx, fp)
}

func (c *Cache) resolve(ctx context.Context, fp string, compute func(ctx context.Context) ([]byte, error)) (outcome, error) {
	for {
		entry, err := c.lookup(ctx, fp)
		if err != nil {
			return outcome{}, err
		}
		if entry != nil && entry.State == models.CacheComplete {
			return outcome{payload: entry.Payload, hit: true}, nil
		}

		if entry == nil {
			claimed, err := c.store.Claim(ctx, fp, c.owner, c.opts.ClaimTTL)
			if err != nil {
				return outcome{}, fmt.Errorf("claim cache entry: %w", err)
			}
			if claimed {
				payload, err := c.computeAndPublish(ctx, fp, compute)
				return outcome{payload: payload}, err
			}
		}

		payload, done, err := c.wait(ctx, fp)
		if err != nil {
			return outcome{}, err
		}
		if done {
			return outcome{payload: payload, hit: true}, nil
		}
		// the claim lapsed without a result; try to take it over
	}
}

// lookup treats corrupt and payload-less complete entries as misses.
func (c *Cache) lookup(ctx context.Context, fp string) (*models.CacheEntry, error) {
	entry, err := c.store.Get(ctx, fp)
	if errors.Is(err, models.ErrCacheCorruption) || (err == nil && entry != nil && entry.State == models.CacheComplete && len(entry.Payload) == 0) {
		logger.Warn("Discarding corrupt cache entry", "fingerprint", fp, "error", err)
		if err := c.store.Delete(ctx, fp); err != nil {
			return nil, fmt.Errorf("delete corrupt cache entry: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return entry, nil
}

func (c *Cache) computeAndPublish(ctx context.Context, fp string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	stop := c.holdClaim(ctx, fp)
	payload, err := compute(ctx)
	stop()
	if err != nil {
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ctx.Err() != nil {
			// our own cancellation is not a result other callers should see
			if derr := c.store.Delete(cleanup, fp); derr != nil {
				logger.Warn("Failed to release cache claim", "fingerprint", fp, "error", derr)
			}
		} else if ferr := c.store.Fail(cleanup, fp, err.Error(), c.opts.FailureTTL); ferr != nil {
			logger.Warn("Failed to record cache failure", "fingerprint", fp, "error", ferr)
		}
		return nil, err
	}

	entry := &models.CacheEntry{
		Fingerprint: fp,
		State:       models.CacheComplete,
		Owner:       c.owner,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.store.Publish(ctx, entry, c.opts.TTL); err != nil {
		// the result is still good for this caller
		logger.Warn("Failed to publish cache entry", "fingerprint", fp, "error", err)
	}
	return payload, nil
}

// holdClaim renews the claim on fp every third of the claim TTL until the
// returned stop is called, so a long compute keeps other processes waiting
// rather than taking over.
func (c *Cache) holdClaim(ctx context.Context, fp string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(max(c.opts.ClaimTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := c.store.Renew(ctx, fp, c.owner, c.opts.ClaimTTL)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("Failed to renew cache claim", "fingerprint", fp, "error", err)
				}
				continue
			}
			if !held {
				logger.Warn("Cache claim lost while computing", "fingerprint", fp)
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// wait polls until the entry completes (done), a failure record appears
// (error), or the claim disappears (not done).
func (c *Cache) wait(ctx context.Context, fp string) ([]byte, bool, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
		}

		entry, err := c.lookup(ctx, fp)
		if err != nil {
			return nil, false, err
		}
		if entry != nil {
			if entry.State == models.CacheComplete {
				return entry.Payload, true, nil
			}
			continue
		}

		reason, failed, err := c.store.Failure(ctx, fp)
		if err != nil {
			return nil, false, fmt.Errorf("read cache failure: %w", err)
		}
		if failed {
			return nil, false, fmt.Errorf("%w: %s", ErrComputeFailed, reason)
		}
		return nil, false, nil
	}
}
