package spots

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) Add(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCache(capacity int) (*Cache, *manualClock) {
	clock := &manualClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(capacity, DefaultRetention)
	cache.SetClock(clock)
	return cache, clock
}

func callsigns(spots []Spot) []string {
	result := make([]string, len(spots))
	for i, spot := range spots {
		result[i] = spot.Callsign
	}
	sort.Strings(result)
	return result
}

func TestCache_AddReplacesByCallsign(t *testing.T) {
	cache, clock := newTestCache(DefaultCapacity)

	cache.Add(Spot{Callsign: "DL1ABC", Frequency: 14_025_000, Timestamp: clock.Now()})
	cache.Add(Spot{Callsign: "DL1ABC", Frequency: 7_025_000, Timestamp: clock.Now()})

	spots := cache.Spots()
	require.Len(t, spots, 1)
	assert.Equal(t, 7_025_000.0, spots[0].Frequency)
}

func TestCache_Retention(t *testing.T) {
	cache, clock := newTestCache(DefaultCapacity)
	cache.Add(Spot{Callsign: "DL1ABC", Timestamp: clock.Now()})
	clock.Add(10 * time.Minute)
	cache.Add(Spot{Callsign: "DL2ABC", Timestamp: clock.Now()})

	clock.Add(20*time.Minute - time.Second)
	assert.Equal(t, []string{"DL1ABC", "DL2ABC"}, callsigns(cache.Spots()))

	clock.Add(time.Second)
	assert.Equal(t, []string{"DL2ABC"}, callsigns(cache.Spots()), "exactly 30 minutes old is expired")
	assert.Equal(t, 2, cache.Len(), "expired spots are removed lazily")

	cache.Add(Spot{Callsign: "DL3ABC", Timestamp: clock.Now()})
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, []string{"DL2ABC", "DL3ABC"}, callsigns(cache.Spots()))
}

func TestCache_FutureSpotsAreActive(t *testing.T) {
	cache, clock := newTestCache(DefaultCapacity)

	cache.Add(Spot{Callsign: "DL1ABC", Timestamp: clock.Now().Add(time.Hour)})

	assert.Len(t, cache.Spots(), 1)
}

func TestCache_EvictsOldestFirst(t *testing.T) {
	cache, clock := newTestCache(3)
	start := clock.Now()
	cache.Add(Spot{Callsign: "DL2ABC", Timestamp: start.Add(2 * time.Second)})
	cache.Add(Spot{Callsign: "DL1ABC", Timestamp: start.Add(1 * time.Second)})
	cache.Add(Spot{Callsign: "DL3ABC", Timestamp: start.Add(3 * time.Second)})

	cache.Add(Spot{Callsign: "DL4ABC", Timestamp: start.Add(4 * time.Second)})

	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, []string{"DL2ABC", "DL3ABC", "DL4ABC"}, callsigns(cache.Spots()))
}

func TestCache_DefaultCapacity(t *testing.T) {
	cache, clock := newTestCache(0)

	for i := range DefaultCapacity + 10 {
		cache.Add(Spot{Callsign: fmt.Sprintf("DL%dABC", i), Timestamp: clock.Now().Add(time.Duration(i) * time.Millisecond)})
	}

	assert.Equal(t, DefaultCapacity, cache.Len())
	for _, spot := range cache.Spots() {
		assert.NotEqual(t, "DL0ABC", spot.Callsign)
	}
}

func TestCache_NotifyListeners(t *testing.T) {
	cache, clock := newTestCache(DefaultCapacity)
	var notified []string
	cache.Notify(ListenerFunc(func(spot Spot) {
		notified = append(notified, spot.Callsign)
		assert.Len(t, cache.Spots(), len(notified), "the listener must be called outside the lock")
	}))

	cache.Add(Spot{Callsign: "DL1ABC", Timestamp: clock.Now()})
	cache.Add(Spot{Callsign: "DL2ABC", Timestamp: clock.Now().Add(-time.Hour)})
	cache.Add(Spot{Callsign: "DL3ABC", Timestamp: clock.Now()})

	assert.Equal(t, []string{"DL1ABC", "DL3ABC"}, notified)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache(50, DefaultRetention)
	wg := &sync.WaitGroup{}
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := range 100 {
				cache.Add(Spot{Callsign: fmt.Sprintf("DL%dA%d", i, j), Timestamp: time.Now()})
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				cache.Spots()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, cache.Len())
}

func TestValidate(t *testing.T) {
	tt := []struct {
		desc     string
		spot     Spot
		expected Spot
		invalid  bool
	}{
		{
			desc:     "normalize",
			spot:     Spot{Callsign: " dl1abc ", Frequency: 14025000, Mode: "cw", Spotter: "n0call", Grid: "jo31"},
			expected: Spot{Callsign: "DL1ABC", Frequency: 14025000, Mode: "CW", Spotter: "N0CALL", Grid: "JO31"},
		},
		{
			desc:     "without grid",
			spot:     Spot{Callsign: "DL1ABC", Frequency: 7025000},
			expected: Spot{Callsign: "DL1ABC", Frequency: 7025000},
		},
		{desc: "invalid callsign", spot: Spot{Callsign: "???", Frequency: 7025000}, invalid: true},
		{desc: "empty callsign", spot: Spot{Frequency: 7025000}, invalid: true},
		{desc: "invalid grid", spot: Spot{Callsign: "DL1ABC", Frequency: 7025000, Grid: "not a grid"}, invalid: true},
		{desc: "missing frequency", spot: Spot{Callsign: "DL1ABC"}, invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := Validate(tc.spot)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}
