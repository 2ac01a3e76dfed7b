// Package sdr implements the spectrum acquisition pipeline: a worker goroutine that periodically reads
// a block of IQ samples from a signal source, transforms it into a power spectrum and delivers the
// resulting frames through a bounded channel to the controller.
package sdr

import (
	"errors"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("sdr already running")
	ErrNotRunning     = errors.New("sdr not running")
	ErrInvalidConfig  = errors.New("invalid sdr configuration")
)

// Frame is one power spectrum produced by the acquisition worker.
type Frame struct {
	Frequency int       // the center frequency in effect when the frame was produced
	Spectrum  []float32 // the power of each FFT bin in dB, in bin order
	Timestamp time.Time
}

// Status of the pipeline.
type Status struct {
	Running    bool    `json:"running"`
	Frequency  int     `json:"frequency"`
	SampleRate int     `json:"sample_rate"`
	Gain       float64 `json:"gain"`
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

var WallClock = ClockFunc(time.Now)
