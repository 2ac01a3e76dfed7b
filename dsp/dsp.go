// Package dsp provides the spectral building blocks of the acquisition pipeline.
package dsp

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// PowerFloor is the lowest power value in dB that is reported for a spectrum bin.
// Bins without any power (e.g. an all-zero input block) are clamped to this value.
const PowerFloor = -200.0

func PSD(fftValue complex128) float64 {
	return math.Pow(real(fftValue), 2) + math.Pow(imag(fftValue), 2)
}

// PowerIndB converts the given FFT value into 10*log10(|value|^2), clamped to PowerFloor.
func PowerIndB[T constraints.Float](fftValue complex128) T {
	psd := PSD(fftValue)
	if psd <= 0 || math.IsNaN(psd) {
		return T(PowerFloor)
	}
	result := 10.0 * math.Log10(psd)
	if result < PowerFloor {
		return T(PowerFloor)
	}
	return T(result)
}

// Centered returns a copy of the given spectrum in frequency order, i.e. the DC bin is moved into the center.
func Centered[T Number](spectrum []T) []T {
	blockSize := len(spectrum)
	result := make([]T, blockSize)
	for i, value := range spectrum {
		result[binToSpectrumIndex(i, blockSize)] = value
	}
	return result
}

func binToSpectrumIndex(bin int, blockSize int) int {
	centerBin := blockSize / 2
	return (bin + centerBin) % blockSize
}

type BinLocation float64

const (
	BinFrom   BinLocation = -0.5
	BinCenter BinLocation = 0
	BinTo     BinLocation = 0.5
)

// FrequencyMapping maps the bins of a centered spectrum to frequencies.
type FrequencyMapping[F Number] struct {
	sampleRate int
	blockSize  int
	binSize    float64

	centerFrequency int
	fromFrequency   int
}

func NewFrequencyMapping[F Number](sampleRate int, blockSize int, centerFrequency F) *FrequencyMapping[F] {
	result := &FrequencyMapping[F]{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		binSize:    float64(sampleRate) / float64(blockSize),
	}
	result.SetCenterFrequency(centerFrequency)

	return result
}

func (m *FrequencyMapping[F]) String() string {
	return fmt.Sprintf("[%v - %v - %v]", m.fromFrequency, m.centerFrequency, m.ToFrequency())
}

func (m *FrequencyMapping[F]) SetCenterFrequency(frequency F) {
	m.centerFrequency = int(frequency)
	m.fromFrequency = m.centerFrequency - m.sampleRate/2
}

// FromFrequency is the lower edge of the first bin.
func (m *FrequencyMapping[F]) FromFrequency() F {
	return m.BinToFrequency(0, BinFrom)
}

// ToFrequency is the upper edge of the last bin.
func (m *FrequencyMapping[F]) ToFrequency() F {
	return m.BinToFrequency(m.blockSize-1, BinTo)
}

func (m *FrequencyMapping[F]) BinToFrequency(bin int, location BinLocation) F {
	locationDelta := m.binSize * float64(location)

	return F(m.fromFrequency + int(float64(bin)*m.binSize+locationDelta))
}

func (m *FrequencyMapping[F]) FrequencyToBin(frequency F) int {
	bin := int((float64(frequency) - float64(m.fromFrequency)) / m.binSize)
	return max(0, min(bin, m.blockSize-1))
}

// Block represents a block of samples that are processed as one unit.
type Block[T Number] []T

// Size returns the blocksize.
func (b Block[T]) Size() int {
	return len(b)
}

// Max imum value in the given section of this block.
func (b Block[T]) Max(from, to int) (T, int) {
	maxValue := b[from]
	maxI := from
	for i := from; i <= to; i++ {
		if maxValue < b[i] {
			maxValue = b[i]
			maxI = i
		}
	}
	return maxValue, maxI
}
