package web

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/hamshack/sdr"
)

type fakeSDR struct {
	lock     *sync.Mutex
	status   sdr.Status
	frames   []*sdr.Frame
	startErr error
	stopErr  error
	tuneErr  error
}

func newFakeSDR() *fakeSDR {
	return &fakeSDR{
		lock:   &sync.Mutex{},
		status: sdr.Status{Frequency: 14_200_000, SampleRate: 8000, Gain: 30},
	}
}

func (s *fakeSDR) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.status.Running = true
	return nil
}

func (s *fakeSDR) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stopErr != nil {
		return s.stopErr
	}
	s.status.Running = false
	return nil
}

func (s *fakeSDR) SetFrequency(frequency int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.tuneErr != nil {
		return s.tuneErr
	}
	s.status.Frequency = frequency
	return nil
}

func (s *fakeSDR) Status() sdr.Status {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.status
}

func (s *fakeSDR) SpectrumData() (*sdr.Frame, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.frames) == 0 {
		return nil, false
	}
	result := s.frames[0]
	s.frames = s.frames[1:]
	return result, true
}

func (s *fakeSDR) queue(frame *sdr.Frame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.frames = append(s.frames, frame)
}

type recordingObserver struct {
	lock      *sync.Mutex
	statuses  []sdr.Status
	spectrums []*sdr.Frame
}

func (o *recordingObserver) ShowStatus(status sdr.Status) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.statuses = append(o.statuses, status)
}

func (o *recordingObserver) ShowSpectrum(frame *sdr.Frame, _ int) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.spectrums = append(o.spectrums, frame)
}

func TestNewSpectrum(t *testing.T) {
	timestamp := time.Now()
	frame := &sdr.Frame{Frequency: 14_200_000, Spectrum: []float32{0, 1, 2, 3, 4, 5, 6, 7}, Timestamp: timestamp}

	actual := NewSpectrum(frame, 8000)

	assert.Equal(t, &Spectrum{
		Frequency:     14_200_000,
		FromFrequency: 14_195_500,
		ToFrequency:   14_203_500,
		Timestamp:     timestamp,
		Spectrum:      []float32{4, 5, 6, 7, 0, 1, 2, 3},
	}, actual)
}

func TestPoller_Poll(t *testing.T) {
	device := newFakeSDR()
	poller := NewPoller(device, time.Hour)
	defer poller.Close()
	observer := &recordingObserver{lock: &sync.Mutex{}}
	poller.Notify(observer)
	_, messages := poller.Subscribe()
	now := time.Now()

	poller.poll(now)

	msg, ok := receive(t, messages)
	require.True(t, ok)
	assert.Equal(t, Message{Type: StatusMessageType, Timestamp: now, Data: device.Status()}, msg)
	_, ok = poller.LatestSpectrum()
	assert.False(t, ok)

	frame := &sdr.Frame{Frequency: 14_200_000, Spectrum: []float32{1, 2, 3, 4}, Timestamp: now}
	device.queue(frame)
	poller.poll(now)

	msg, ok = receive(t, messages)
	require.True(t, ok)
	assert.Equal(t, StatusMessageType, msg.Type)
	msg, ok = receive(t, messages)
	require.True(t, ok)
	assert.Equal(t, SpectrumMessageType, msg.Type)
	spectrum, ok := poller.LatestSpectrum()
	require.True(t, ok)
	assert.Equal(t, spectrum, msg.Data)
	assert.Equal(t, []float32{3, 4, 1, 2}, spectrum.Spectrum)

	assert.Len(t, observer.statuses, 2)
	assert.Equal(t, []*sdr.Frame{frame}, observer.spectrums)
}

func TestPoller_Run(t *testing.T) {
	device := newFakeSDR()
	poller := NewPoller(device, 10*time.Millisecond)
	_, messages := poller.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	msg, ok := receive(t, messages)
	assert.True(t, ok)
	assert.Equal(t, StatusMessageType, msg.Type)

	cancel()
	<-done
	for range messages {
	}
}
