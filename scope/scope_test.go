package scope

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/hamshack/sdr"
)

func TestNewSpectralFrame(t *testing.T) {
	frame := &sdr.Frame{
		Frequency: 14200000,
		Spectrum:  []float32{0, 1, 2, 3, 4, 5, 6, 7},
		Timestamp: time.Now(),
	}

	actual := NewSpectralFrame(frame, 8000)

	assert.Equal(t, 14200000, actual.CenterFrequency)
	assert.Equal(t, 14196000-500, actual.FromFrequency)
	assert.Equal(t, 14204000-500, actual.ToFrequency)
	assert.Equal(t, []float32{4, 5, 6, 7, 0, 1, 2, 3}, actual.Values)
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, frame.Spectrum, "the original frame must not be modified")
}

func TestEncodeDecodeFrames(t *testing.T) {
	timestamp := time.Date(2026, 10, 18, 12, 0, 0, 123456789, time.UTC)

	spectralFrame := &SpectralFrame{Timestamp: timestamp, CenterFrequency: 7000000, FromFrequency: 6000000, ToFrequency: 8000000, Values: []float32{-200, -10.5, 3}}
	encoded := encodeSpectralFrame(spectralFrame)
	assert.Equal(t, SpectralFrameKind, frameKind(encoded))
	decodedSpectralFrame, err := decodeSpectralFrame(encoded)
	require.NoError(t, err)
	assert.Equal(t, spectralFrame, decodedSpectralFrame)

	statusFrame := &StatusFrame{Timestamp: timestamp, Status: sdr.Status{Running: true, Frequency: 7000000, SampleRate: 2400000, Gain: 30}}
	encoded = encodeStatusFrame(statusFrame)
	assert.Equal(t, StatusFrameKind, frameKind(encoded))
	decodedStatusFrame, err := decodeStatusFrame(encoded)
	require.NoError(t, err)
	assert.Equal(t, statusFrame, decodedStatusFrame)
}

func TestStartStopScope(t *testing.T) {
	scope := NewScopeServer("localhost:")

	err := scope.Start()
	require.NoError(t, err)
	assert.True(t, scope.Active())
	assert.NotNil(t, scope.Addr())
	assert.Error(t, scope.Start())

	scope.Stop()
	assert.False(t, scope.Active())
	assert.Nil(t, scope.Addr())

	scope.ShowStatus(sdr.Status{})
}

func TestStartStopScopeRepeatedly(t *testing.T) {
	for range 200 {
		scope := NewScopeServer("localhost:0")
		require.NoError(t, scope.Start())
		assert.NotNil(t, scope.Addr())
		scope.Stop()
	}
}

func TestFrameRoundTrip(t *testing.T) {
	scope := NewScopeServer("localhost:")

	err := scope.Start()
	require.NoError(t, err)
	defer scope.Stop()

	client := NewClient(scope.Addr().String())
	err = client.Open()
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	statusFrames, spectralFrames, err := client.GetFrames(ctx)
	require.NoError(t, err)

	framesReceived := &sync.WaitGroup{}
	framesReceived.Add(2)
	var statusFrame *StatusFrame
	var spectralFrame *SpectralFrame
	go func() {
		for range 2 {
			select {
			case frame := <-statusFrames:
				statusFrame = frame
			case frame := <-spectralFrames:
				spectralFrame = frame
			}
			framesReceived.Done()
		}
	}()
	time.Sleep(100 * time.Millisecond)

	scope.ShowStatus(sdr.Status{Running: true, Frequency: 14200000, SampleRate: 8000, Gain: 30})
	scope.ShowSpectrum(&sdr.Frame{Frequency: 14200000, Spectrum: []float32{1, 2, 3, 4}, Timestamp: time.Now()}, 8000)
	framesReceived.Wait()

	require.NotNil(t, statusFrame)
	assert.True(t, statusFrame.Running)
	assert.Equal(t, 14200000, statusFrame.Frequency)
	require.NotNil(t, spectralFrame)
	assert.Equal(t, []float32{3, 4, 1, 2}, spectralFrame.Values)

	status, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8000, status.SampleRate)
}

func TestClientStopsReceivingWhenContextIsDone(t *testing.T) {
	scope := NewScopeServer("localhost:")
	require.NoError(t, scope.Start())
	defer scope.Stop()

	client := NewClient(scope.Addr().String())
	require.NoError(t, client.Open())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, spectralFrames, err := client.GetFrames(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	for range 3 {
		scope.ShowStatus(sdr.Status{Running: true})
	}
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case _, open := <-spectralFrames:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		assert.Fail(t, "the frame channels were not closed")
	}
}
