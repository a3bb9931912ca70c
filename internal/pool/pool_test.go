package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/transdoc-go/internal/llm"
)

// fakeClient tracks how many calls are in flight against it.
type fakeClient struct {
	id      int
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (f *fakeClient) enter() func() {
	n := f.active.Add(1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeClient) ChatWithText(ctx context.Context, message string) (string, error) {
	defer f.enter()()
	time.Sleep(f.delay)
	return fmt.Sprintf("client-%d:%s", f.id, message), nil
}

func (f *fakeClient) ChatWithImage(ctx context.Context, message string, img llm.Image) (string, error) {
	return f.ChatWithText(ctx, message)
}

func creds(n int) []llm.Credential {
	out := make([]llm.Credential, n)
	for i := range out {
		out[i] = llm.Credential{ID: int64(i + 1), Key: fmt.Sprintf("key-%02d-xxxxxxxxxx", i), BaseURL: "http://backend"}
	}
	return out
}

func fakeFactory(clients map[int64]*fakeClient, delay time.Duration) ClientFactory {
	var mu sync.Mutex
	return func(cred llm.Credential) (llm.RemoteClient, error) {
		mu.Lock()
		defer mu.Unlock()
		c := &fakeClient{id: int(cred.ID), delay: delay}
		if clients != nil {
			clients[cred.ID] = c
		}
		return c, nil
	}
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func TestCapIsNeverExceeded(t *testing.T) {
	const k, capPerClient, callers = 3, 2, 24
	clients := map[int64]*fakeClient{}
	p := New(creds(k), fakeFactory(clients, 5*time.Millisecond),
		WithCap(capPerClient), WithMaxRetries(10000), WithRetryDelay(time.Millisecond))

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.ChatWithText(context.Background(), fmt.Sprint(i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	var total int64
	for _, c := range clients {
		assert.LessOrEqual(t, int(c.maxSeen.Load()), capPerClient)
	}
	for _, st := range p.Status() {
		assert.Equal(t, 0, st.ActiveRequests)
		total += st.TotalRequests
	}
	assert.Equal(t, int64(callers), total)
}

func TestExecuteSucceedsAfterFailures(t *testing.T) {
	const r = 4
	rec := &sleepRecorder{}
	p := New(creds(2), fakeFactory(nil, 0), WithMaxRetries(10), WithRetryDelay(10*time.Millisecond), WithSleep(rec.sleep))

	attempts := 0
	out, err := p.Execute(context.Background(), func(ctx context.Context, c llm.RemoteClient) (string, error) {
		attempts++
		if attempts < r {
			return "", errors.New("transient")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, r, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, rec.calls)

	var failed int64
	for _, st := range p.Status() {
		failed += st.FailedRequests
		assert.Equal(t, 0, st.ActiveRequests)
	}
	assert.Equal(t, int64(r-1), failed)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	const maxRetries = 5
	rec := &sleepRecorder{}
	p := New(creds(3), fakeFactory(nil, 0), WithMaxRetries(maxRetries), WithRetryDelay(time.Second), WithSleep(rec.sleep))

	attempts := 0
	out, err := p.Execute(context.Background(), func(ctx context.Context, c llm.RemoteClient) (string, error) {
		attempts++
		return "", fmt.Errorf("boom %d", attempts)
	})
	assert.Empty(t, out)
	assert.Equal(t, maxRetries, attempts)

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, maxRetries, exhausted.Attempts)
	assert.False(t, exhausted.NonRetryable)
	assert.Equal(t, "All retry attempts failed. Last error: boom 5", err.Error())
	// no backoff after the final attempt
	assert.Len(t, rec.calls, maxRetries-1)
	assert.Equal(t, 4*time.Second, rec.calls[3])

	for _, st := range p.Status() {
		if st.FailedRequests > 0 {
			assert.Contains(t, st.LastError, "boom")
		}
	}
}

func TestExecuteTreatsPanicAsFailure(t *testing.T) {
	p := New(creds(1), fakeFactory(nil, 0), WithMaxRetries(2), WithSleep((&sleepRecorder{}).sleep))
	_, err := p.Execute(context.Background(), func(ctx context.Context, c llm.RemoteClient) (string, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, p.Status()[0].ActiveRequests)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	p := New(creds(2), fakeFactory(nil, 0), WithMaxRetries(10), WithSleep((&sleepRecorder{}).sleep))
	attempts := 0
	_, err := p.Execute(context.Background(), func(ctx context.Context, c llm.RemoteClient) (string, error) {
		attempts++
		return "", &llm.Error{Kind: llm.KindInput, Message: "bad image"}
	})
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.True(t, exhausted.NonRetryable)
	assert.Equal(t, "Retry stopped after 1 attempt(s), error is not retryable: input error: bad image", err.Error())
}

func TestExecuteWithNoClientsCountsAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	p := New(nil, fakeFactory(nil, 0), WithMaxRetries(3), WithRetryDelay(50*time.Millisecond), WithSleep(rec.sleep))
	called := false
	_, err := p.Execute(context.Background(), func(ctx context.Context, c llm.RemoteClient) (string, error) {
		called = true
		return "x", nil
	})
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrNoClientAvailable)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond}, rec.calls)
}

func TestExecuteRespectsContext(t *testing.T) {
	p := New(creds(1), fakeFactory(nil, 0), WithMaxRetries(100), WithRetryDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := p.Execute(ctx, func(ctx context.Context, c llm.RemoteClient) (string, error) {
		return "", errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func setLoads(p *Pool, loads ...int) {
	for i, rec := range p.current.Load().records {
		rec.active = loads[i]
	}
}

func TestSelectionPrefersLeastLoaded(t *testing.T) {
	p := New(creds(3), fakeFactory(nil, 0), WithCap(3), WithRand(rand.New(rand.NewPCG(1, 2))))
	setLoads(p, 0, 0, 2)

	for i := 0; i < 1000; i++ {
		p.mu.Lock()
		h := p.pickLocked(p.current.Load())
		p.mu.Unlock()
		assert.NotEqual(t, 2, h)
		assert.GreaterOrEqual(t, h, 0)
	}
}

func TestSelectionSkipsClientsAtCap(t *testing.T) {
	p := New(creds(2), fakeFactory(nil, 0), WithCap(3))
	setLoads(p, 3, 3)
	_, _, ok := p.Select()
	assert.False(t, ok)

	setLoads(p, 3, 2)
	h, rec, ok := p.Select()
	require.True(t, ok)
	assert.Equal(t, 1, h)
	assert.Equal(t, 3, rec.Active())
}

func TestSelectionTieBreakIsUniform(t *testing.T) {
	p := New(creds(2), fakeFactory(nil, 0), WithCap(3), WithRand(rand.New(rand.NewPCG(42, 7))))
	setLoads(p, 1, 1)

	const trials = 20000
	counts := [2]int{}
	for i := 0; i < trials; i++ {
		p.mu.Lock()
		counts[p.pickLocked(p.current.Load())]++
		p.mu.Unlock()
	}
	// about 5 standard deviations either side of trials/2
	assert.InDelta(t, trials/2, counts[0], 360)
	assert.InDelta(t, trials/2, counts[1], 360)
}

func TestRefreshSwapsTable(t *testing.T) {
	p := New(creds(2), fakeFactory(nil, 0))
	assert.Equal(t, 2, p.Size())

	_, old, ok := p.Select()
	require.True(t, ok)

	n := p.Refresh(creds(4))
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, p.Size())
	for _, st := range p.Status() {
		assert.Equal(t, 0, st.ActiveRequests, "fresh records start idle")
	}

	// the in-flight call on the old table can still complete
	old.finish(nil)
	assert.Equal(t, 0, old.Active())

	_, ok = p.Record(3)
	assert.True(t, ok)
	_, ok = p.Record(4)
	assert.False(t, ok)
}

func TestFactoryErrorsSkipCredential(t *testing.T) {
	factory := func(cred llm.Credential) (llm.RemoteClient, error) {
		if cred.ID == 2 {
			return nil, errors.New("bad type")
		}
		return &fakeClient{id: int(cred.ID)}, nil
	}
	p := New(creds(3), factory)
	assert.Equal(t, 2, p.Size())
	status := p.Status()
	assert.Equal(t, int64(1), status[0].KeyID)
	assert.Equal(t, int64(3), status[1].KeyID)
	assert.Equal(t, "key-00-xxx...", status[0].Key)
}
