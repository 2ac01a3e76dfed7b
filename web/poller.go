package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftl/hamshack/dsp"
	"github.com/ftl/hamshack/sdr"
)

const (
	StatusMessageType   = "sdr_status"
	SpectrumMessageType = "spectrum"

	DefaultPollInterval = 100 * time.Millisecond
)

// Message is sent to the SSE and WebSocket clients.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Spectrum is a power spectrum in frequency order, ready to be displayed.
type Spectrum struct {
	Frequency     int       `json:"frequency"`
	FromFrequency int       `json:"from_frequency"`
	ToFrequency   int       `json:"to_frequency"`
	Timestamp     time.Time `json:"timestamp"`
	Spectrum      []float32 `json:"spectrum"`
}

func NewSpectrum(frame *sdr.Frame, sampleRate int) *Spectrum {
	mapping := dsp.NewFrequencyMapping(sampleRate, len(frame.Spectrum), frame.Frequency)
	return &Spectrum{
		Frequency:     frame.Frequency,
		FromFrequency: mapping.FromFrequency(),
		ToFrequency:   mapping.ToFrequency(),
		Timestamp:     frame.Timestamp,
		Spectrum:      dsp.Centered(frame.Spectrum),
	}
}

// Observer is notified about every polled status and spectrum frame.
type Observer interface {
	ShowStatus(status sdr.Status)
	ShowSpectrum(frame *sdr.Frame, sampleRate int)
}

// Poller polls the status and the spectrum data of the SDR in a fixed interval and distributes
// them to the subscribers and observers.
type Poller struct {
	sdr      SDR
	interval time.Duration
	hub      *hub

	lock      *sync.RWMutex
	observers []Observer
	latest    *Spectrum
}

func NewPoller(sdr SDR, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		sdr:      sdr,
		interval: interval,
		hub:      newHub(),
		lock:     &sync.RWMutex{},
	}
}

func (p *Poller) Notify(observer Observer) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.observers = append(p.observers, observer)
}

// Run polls until the given context is done. All subscriptions are closed when Run returns.
func (p *Poller) Run(ctx context.Context) {
	defer p.Close()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.poll(now)
		}
	}
}

func (p *Poller) Close() {
	p.hub.Close()
}

func (p *Poller) poll(now time.Time) {
	status := p.sdr.Status()
	p.lock.RLock()
	observers := p.observers
	p.lock.RUnlock()

	p.hub.Publish(Message{Type: StatusMessageType, Timestamp: now, Data: status})
	for _, observer := range observers {
		observer.ShowStatus(status)
	}

	frame, ok := p.sdr.SpectrumData()
	if !ok {
		return
	}
	spectrum := NewSpectrum(frame, status.SampleRate)
	p.lock.Lock()
	p.latest = spectrum
	p.lock.Unlock()

	p.hub.Publish(Message{Type: SpectrumMessageType, Timestamp: now, Data: spectrum})
	for _, observer := range observers {
		observer.ShowSpectrum(frame, status.SampleRate)
	}
}

// LatestSpectrum returns the last spectrum that was polled from the SDR.
func (p *Poller) LatestSpectrum() (*Spectrum, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.latest, p.latest != nil
}

func (p *Poller) Subscribe() (uuid.UUID, <-chan Message) {
	return p.hub.Subscribe()
}

func (p *Poller) Unsubscribe(id uuid.UUID) {
	p.hub.Unsubscribe(id)
}
