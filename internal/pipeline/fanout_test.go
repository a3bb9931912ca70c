package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutLimit(t *testing.T) {
	testCases := []struct {
		name                  string
		size, factor, ceiling int
		want                  int
	}{
		{"small pool", 3, 2, 16, 6},
		{"capped by ceiling", 20, 2, 16, 16},
		{"empty pool", 0, 2, 16, 1},
		{"no ceiling", 10, 3, 0, 30},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fanoutLimit(tc.size, tc.factor, tc.ceiling))
		})
	}
}

func TestFanOutPreservesOrder(t *testing.T) {
	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}

	for trial := 0; trial < 20; trial++ {
		rnd := rand.New(rand.NewPCG(uint64(trial), 7))
		delays := make([]time.Duration, len(items))
		for i := range delays {
			delays[i] = time.Duration(rnd.IntN(3000)) * time.Microsecond
		}

		out, errs := fanOut(context.Background(), items, 8, func(ctx context.Context, i int, item int) (string, error) {
			time.Sleep(delays[i])
			return fmt.Sprintf("page-%d", item), nil
		})
		require.Len(t, out, len(items))
		for i, got := range out {
			assert.Equal(t, fmt.Sprintf("page-%d", i), got)
			assert.NoError(t, errs[i])
		}
	}
}

func TestFanOutDropsFailures(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	out, errs := fanOut(context.Background(), items, 2, func(ctx context.Context, i int, item string) (string, error) {
		if item == "b" || item == "d" {
			return "", errors.New("ocr failed")
		}
		return item + item, nil
	})
	assert.Equal(t, []string{"aa", "cc", "ee"}, out)
	assert.Error(t, errs[1])
	assert.Error(t, errs[3])
	assert.NoError(t, errs[0])
}

func TestFanOutRespectsLimit(t *testing.T) {
	var active, peak atomic.Int32
	items := make([]int, 30)
	_, _ = fanOut(context.Background(), items, 4, func(ctx context.Context, i int, item int) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		return i, nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestFanOutCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, errs := fanOut(ctx, []int{1, 2, 3}, 1, func(ctx context.Context, i int, item int) (int, error) {
		return item, nil
	})
	assert.Empty(t, out)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestJobQueueFIFO(t *testing.T) {
	q := newJobQueue()
	q.push(1)
	q.push(2)
	q.pushFront(9)

	for _, want := range []int64{9, 1, 2} {
		id, ok := q.pop(10 * time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
	_, ok := q.pop(10 * time.Millisecond)
	assert.False(t, ok)
}
