// Package pool spreads remote-model calls over a set of credentials with
// per-client concurrency caps, least-loaded selection and retry.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/llm"
	"github.com/vrsandeep/transdoc-go/internal/models"
)

const (
	DefaultCap        = 50
	DefaultMaxRetries = 20
	DefaultRetryDelay = 2 * time.Second
)

// ErrNoClientAvailable is recorded for an attempt that found every client at
// its cap, or no clients at all.
var ErrNoClientAvailable = errors.New("no client available")

// ExhaustedError is returned once every attempt has failed, or earlier when
// an attempt failed with an error no other credential can fix (NonRetryable).
type ExhaustedError struct {
	Attempts     int
	Last         error
	NonRetryable bool
}

func (e *ExhaustedError) Error() string {
	last := "none"
	if e.Last != nil {
		last = e.Last.Error()
	}
	if e.NonRetryable {
		return fmt.Sprintf("Retry stopped after %d attempt(s), error is not retryable: %s", e.Attempts, last)
	}
	return fmt.Sprintf("All retry attempts failed. Last error: %s", last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Operation is one remote call made through a selected client.
type Operation func(ctx context.Context, c llm.RemoteClient) (string, error)

// ClientFactory builds the client for a credential.
type ClientFactory func(cred llm.Credential) (llm.RemoteClient, error)

// ClientRecord is the runtime state of one pooled credential. Counters are
// guarded by the record's own lock.
type ClientRecord struct {
	Cred   llm.Credential
	Client llm.RemoteClient

	mu       sync.Mutex
	active   int
	total    int64
	failed   int64
	lastErr  string
	lastUsed time.Time
}

// Active returns the number of in-flight calls on the record.
func (r *ClientRecord) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *ClientRecord) begin(now time.Time) {
	r.mu.Lock()
	r.active++
	r.total++
	r.lastUsed = now
	r.mu.Unlock()
}

func (r *ClientRecord) finish(err error) {
	r.mu.Lock()
	if r.active > 0 {
		r.active--
	}
	if err != nil {
		r.failed++
		r.lastErr = err.Error()
	}
	r.mu.Unlock()
}

func (r *ClientRecord) status(handle int) models.ClientStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := models.ClientStatus{
		Handle:         handle,
		KeyID:          r.Cred.ID,
		Key:            models.MaskSecret(r.Cred.Key),
		BaseURL:        r.Cred.BaseURL,
		APIType:        r.Cred.APIType,
		ActiveRequests: r.active,
		TotalRequests:  r.total,
		FailedRequests: r.failed,
		LastError:      r.lastErr,
	}
	if !r.lastUsed.IsZero() {
		t := r.lastUsed
		st.LastUsedAt = &t
	}
	return st
}

type table struct {
	records []*ClientRecord
}

// Pool is safe for concurrent use. mu serializes selection only; the
// operation itself runs unlocked.
type Pool struct {
	mu      sync.Mutex
	current atomic.Pointer[table]
	rnd     *rand.Rand
	factory ClientFactory

	cap        int
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

type Option func(*Pool)

func WithCap(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.cap = n
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(p *Pool) {
		if d >= 0 {
			p.retryDelay = d
		}
	}
}

// WithRand sets the tie-break source.
func WithRand(r *rand.Rand) Option {
	return func(p *Pool) { p.rnd = r }
}

// WithSleep replaces the backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pool) { p.sleep = fn }
}

// New builds a pool over creds. Credentials the factory rejects are skipped.
func New(creds []llm.Credential, factory ClientFactory, opts ...Option) *Pool {
	p := &Pool{
		factory:    factory,
		cap:        DefaultCap,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rnd == nil {
		p.rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	p.current.Store(p.build(creds))
	return p
}

func (p *Pool) build(creds []llm.Credential) *table {
	t := &table{records: make([]*ClientRecord, 0, len(creds))}
	for _, cred := range creds {
		client, err := p.factory(cred)
		if err != nil {
			log.Warn().Err(err).Int64("key_id", cred.ID).Msg("skipping credential")
			continue
		}
		t.records = append(t.records, &ClientRecord{Cred: cred, Client: client})
	}
	return t
}

// Refresh replaces the whole client table. Calls already holding a record
// from the old table finish their current attempt against it.
func (p *Pool) Refresh(creds []llm.Credential) int {
	t := p.build(creds)
	p.mu.Lock()
	p.current.Store(t)
	p.mu.Unlock()
	log.Info().Int("clients", len(t.records)).Msg("client pool refreshed")
	return len(t.records)
}

// Size returns the number of clients in the current table.
func (p *Pool) Size() int {
	return len(p.current.Load().records)
}

// Cap returns the per-client concurrency cap.
func (p *Pool) Cap() int { return p.cap }

// Record returns the record behind a handle of the current table.
func (p *Pool) Record(handle int) (*ClientRecord, bool) {
	t := p.current.Load()
	if handle < 0 || handle >= len(t.records) {
		return nil, false
	}
	return t.records[handle], true
}

// pickLocked returns the handle of a least-loaded client below the cap, or
// -1 when none qualifies. Ties are broken uniformly at random.
func (p *Pool) pickLocked(t *table) int {
	minLoad := -1
	var group []int
	for i, rec := range t.records {
		load := rec.Active()
		if load >= p.cap {
			continue
		}
		switch {
		case minLoad < 0 || load < minLoad:
			minLoad = load
			group = append(group[:0], i)
		case load == minLoad:
			group = append(group, i)
		}
	}
	if len(group) == 0 {
		return -1
	}
	return group[p.rnd.IntN(len(group))]
}

// Select picks a client and marks a call as started on it. ok is false when
// every client is at its cap.
func (p *Pool) Select() (handle int, rec *ClientRecord, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.current.Load()
	handle = p.pickLocked(t)
	if handle < 0 {
		return -1, nil, false
	}
	rec = t.records[handle]
	rec.begin(p.now())
	return handle, rec, true
}

// Execute runs op on a selected client, retrying across clients with linear
// backoff. It always returns either a result or an error; a panicking op is
// treated as a failed attempt.
func (p *Pool) Execute(ctx context.Context, op Operation) (string, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", &ExhaustedError{Attempts: attempt, Last: err}
		}
		last := attempt == p.maxRetries-1

		handle, rec, ok := p.Select()
		if !ok {
			lastErr = ErrNoClientAvailable
			if !last {
				if err := p.sleep(ctx, p.retryDelay); err != nil {
					return "", &ExhaustedError{Attempts: attempt + 1, Last: err}
				}
			}
			continue
		}

		result, err := invoke(ctx, rec.Client, op)
		rec.finish(err)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Debug().Err(err).Int("handle", handle).Int("attempt", attempt+1).Msg("pooled call failed")

		var r interface{ Retryable() bool }
		if errors.As(err, &r) && !r.Retryable() {
			return "", &ExhaustedError{Attempts: attempt + 1, Last: err, NonRetryable: true}
		}
		if !last {
			if err := p.sleep(ctx, p.retryDelay*time.Duration(attempt+1)); err != nil {
				return "", &ExhaustedError{Attempts: attempt + 1, Last: err}
			}
		}
	}
	return "", &ExhaustedError{Attempts: p.maxRetries, Last: lastErr}
}

func invoke(ctx context.Context, c llm.RemoteClient, op Operation) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx, c)
}

// ChatWithText runs a text completion through the pool.
func (p *Pool) ChatWithText(ctx context.Context, message string) (string, error) {
	return p.Execute(ctx, func(ctx context.Context, c llm.RemoteClient) (string, error) {
		return c.ChatWithText(ctx, message)
	})
}

// ChatWithImage runs a vision completion through the pool.
func (p *Pool) ChatWithImage(ctx context.Context, message string, img llm.Image) (string, error) {
	return p.Execute(ctx, func(ctx context.Context, c llm.RemoteClient) (string, error) {
		return c.ChatWithImage(ctx, message, img)
	})
}

// Status snapshots every client of the current table.
func (p *Pool) Status() []models.ClientStatus {
	t := p.current.Load()
	out := make([]models.ClientStatus, 0, len(t.records))
	for i, rec := range t.records {
		out = append(out, rec.status(i))
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
