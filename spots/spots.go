// Package spots keeps the recently received DX spots in a bounded cache with a limited retention time.
package spots

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ftl/hamradio/callsign"
	"github.com/ftl/hamradio/locator"
)

const (
	DefaultCapacity  = 1000
	DefaultRetention = 30 * time.Minute
)

type Spot struct {
	Callsign  string    `json:"callsign"`
	Frequency float64   `json:"frequency"` // Hz
	Mode      string    `json:"mode"`
	Spotter   string    `json:"spotter"`
	Timestamp time.Time `json:"timestamp"`
	Grid      string    `json:"grid,omitempty"`
	SNR       *int      `json:"snr,omitempty"`
}

// Validate checks the callsign and the grid of the given spot and returns a normalized copy.
func Validate(spot Spot) (Spot, error) {
	call, err := callsign.Parse(strings.ToUpper(strings.TrimSpace(spot.Callsign)))
	if err != nil {
		return Spot{}, fmt.Errorf("invalid callsign %q: %w", spot.Callsign, err)
	}
	spot.Callsign = call.String()

	spot.Grid = strings.ToUpper(strings.TrimSpace(spot.Grid))
	if spot.Grid != "" {
		_, err := locator.Parse(spot.Grid)
		if err != nil {
			return Spot{}, fmt.Errorf("invalid grid %q: %w", spot.Grid, err)
		}
	}

	if spot.Frequency <= 0 {
		return Spot{}, fmt.Errorf("invalid frequency %.0f", spot.Frequency)
	}
	spot.Mode = strings.ToUpper(strings.TrimSpace(spot.Mode))
	spot.Spotter = strings.ToUpper(strings.TrimSpace(spot.Spotter))

	return spot, nil
}

type Clock interface {
	Now() time.Time
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time {
	return f()
}

// Listener is notified about every spot that is added to the cache.
type Listener interface {
	SpotAdded(spot Spot)
}

type ListenerFunc func(Spot)

func (f ListenerFunc) SpotAdded(spot Spot) {
	f(spot)
}

// Cache of spots, indexed by callsign. Expired spots are removed lazily when a new spot is added.
type Cache struct {
	lock      *sync.RWMutex
	spots     map[string]Spot
	capacity  int
	retention time.Duration
	clock     Clock

	listeners []Listener
}

func NewCache(capacity int, retention time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Cache{
		lock:      &sync.RWMutex{},
		spots:     make(map[string]Spot),
		capacity:  capacity,
		retention: retention,
		clock:     clockFunc(time.Now),
	}
}

func (c *Cache) SetClock(clock Clock) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.clock = clock
}

// Notify registers the given listener. The listener is called outside of the cache's lock.
func (c *Cache) Notify(listener Listener) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Add inserts the given spot or replaces the spot with the same callsign. Expired spots are removed
// and the oldest spots are evicted if the cache exceeds its capacity.
func (c *Cache) Add(spot Spot) {
	c.lock.Lock()
	now := c.clock.Now()
	c.spots[spot.Callsign] = spot
	c.cleanup(now)
	_, kept := c.spots[spot.Callsign]
	listeners := c.listeners
	c.lock.Unlock()

	if !kept {
		log.Printf("[DEBUG] spot of %s is already expired", spot.Callsign)
		return
	}

	log.Printf("[DEBUG] spot added: %s on %.1fkHz by %s", spot.Callsign, spot.Frequency/1000, spot.Spotter)
	for _, listener := range listeners {
		listener.SpotAdded(spot)
	}
}

// Spots returns all spots that are not expired, in no particular order.
func (c *Cache) Spots() []Spot {
	c.lock.RLock()
	defer c.lock.RUnlock()

	now := c.clock.Now()
	result := make([]Spot, 0, len(c.spots))
	for _, spot := range c.spots {
		if c.active(spot, now) {
			result = append(result, spot)
		}
	}
	return result
}

// Len returns the number of cached spots, including the expired spots that were not removed yet.
func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.spots)
}

func (c *Cache) active(spot Spot, now time.Time) bool {
	return now.Sub(spot.Timestamp) < c.retention
}

func (c *Cache) cleanup(now time.Time) {
	for key, spot := range c.spots {
		if !c.active(spot, now) {
			delete(c.spots, key)
		}
	}

	if len(c.spots) <= c.capacity {
		return
	}

	keys := make([]string, 0, len(c.spots))
	for key := range c.spots {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.spots[keys[i]].Timestamp.Before(c.spots[keys[j]].Timestamp)
	})

	for _, key := range keys[:len(c.spots)-c.capacity] {
		delete(c.spots, key)
	}
}
