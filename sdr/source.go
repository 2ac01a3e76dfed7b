package sdr

import (
	"math"
	"math/rand"
	"time"
)

const (
	secondToneOffset    = 10_000
	secondToneAmplitude = 0.5
	noiseAmplitude      = 0.1
)

// SignalSource provides blocks of complex baseband samples.
type SignalSource interface {
	// ReadBlock fills the given block with samples, using the given configuration.
	ReadBlock(block []complex128, config Config) error
}

// SyntheticSource generates two tones, one on the center frequency and one 10kHz above with half the
// amplitude, plus uniformly distributed noise on both axes.
type SyntheticSource struct {
	rand *rand.Rand
}

func NewSyntheticSource(rnd *rand.Rand) *SyntheticSource {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SyntheticSource{rand: rnd}
}

func (s *SyntheticSource) ReadBlock(block []complex128, config Config) error {
	sampleRate := float64(config.SampleRate)
	frequency := float64(config.Frequency)

	for i := range block {
		t := float64(i) / sampleRate
		phase1 := 2 * math.Pi * frequency * t
		phase2 := 2 * math.Pi * (frequency + secondToneOffset) * t

		iSample := math.Sin(phase1) + secondToneAmplitude*math.Sin(phase2) + s.noise()
		qSample := math.Sin(phase1+math.Pi/2) + secondToneAmplitude*math.Sin(phase2+math.Pi/2) + s.noise()
		block[i] = complex(iSample, qSample)
	}
	return nil
}

// noise returns a uniformly distributed value in [-noiseAmplitude, noiseAmplitude).
func (s *SyntheticSource) noise() float64 {
	return (2*s.rand.Float64() - 1) * noiseAmplitude
}
