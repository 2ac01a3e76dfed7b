package sdr

import (
	"fmt"

	"github.com/ftl/hamshack/dsp"
)

type TransformKind string

const (
	GoDSPTransform TransformKind = "godsp"
	GonumTransform TransformKind = "gonum"
)

const (
	DefaultDevice     = "rtlsdr"
	DefaultSampleRate = 2_400_000
	DefaultFrequency  = 14_200_000
	DefaultGain       = 30.0
	DefaultFFTSize    = 1024

	minFFTSize = 4
)

// Config of the acquisition pipeline. The worker gets a copy of the configuration when it is started.
type Config struct {
	Device     string
	SampleRate int
	Frequency  int
	Gain       float64
	FFTSize    int
	Transform  TransformKind
}

func DefaultConfig() Config {
	return Config{
		Device:     DefaultDevice,
		SampleRate: DefaultSampleRate,
		Frequency:  DefaultFrequency,
		Gain:       DefaultGain,
		FFTSize:    DefaultFFTSize,
		Transform:  GoDSPTransform,
	}
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d: %w", c.SampleRate, ErrInvalidConfig)
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %d: %w", c.Frequency, ErrInvalidConfig)
	}
	if c.FFTSize < minFFTSize || !dsp.IsPowerOfTwo(c.FFTSize) {
		return fmt.Errorf("FFT size must be a power of two >= %d, got %d: %w", minFFTSize, c.FFTSize, ErrInvalidConfig)
	}
	switch c.Transform {
	case "", GoDSPTransform, GonumTransform:
	default:
		return fmt.Errorf("unknown transform %q: %w", c.Transform, ErrInvalidConfig)
	}
	return nil
}

// Transformer converts a block of complex samples into a power spectrum of the same size.
type Transformer interface {
	Size() int
	Transform(spectrum []float32, samples []complex128)
}

func newTransformer(config Config) Transformer {
	switch config.Transform {
	case GonumTransform:
		return dsp.NewGonumTransformer(config.FFTSize)
	default:
		return dsp.NewGoDSPTransformer(config.FFTSize)
	}
}
