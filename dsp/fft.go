package dsp

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// GoDSPTransformer converts blocks of complex samples into a power spectrum using the FFT of go-dsp.
type GoDSPTransformer struct {
	blockSize int
}

func NewGoDSPTransformer(blockSize int) *GoDSPTransformer {
	return &GoDSPTransformer{blockSize: blockSize}
}

func (t *GoDSPTransformer) Size() int {
	return t.blockSize
}

// Transform fills spectrum with the power in dB of each FFT bin, in bin order.
// No window and no normalization is applied.
func (t *GoDSPTransformer) Transform(spectrum []float32, samples []complex128) {
	checkBlockSize(t.blockSize, spectrum, samples)

	fftResult := fft.FFT(samples)
	for i, value := range fftResult {
		spectrum[i] = PowerIndB[float32](value)
	}
}

// GonumTransformer converts blocks of complex samples into a power spectrum using the FFT of gonum.
// The FFT plan is created once for the block size.
type GonumTransformer struct {
	fft          *fourier.CmplxFFT
	coefficients []complex128
}

func NewGonumTransformer(blockSize int) *GonumTransformer {
	return &GonumTransformer{
		fft:          fourier.NewCmplxFFT(blockSize),
		coefficients: make([]complex128, blockSize),
	}
}

func (t *GonumTransformer) Size() int {
	return t.fft.Len()
}

// Transform fills spectrum with the power in dB of each FFT bin, in bin order.
// No window and no normalization is applied.
func (t *GonumTransformer) Transform(spectrum []float32, samples []complex128) {
	checkBlockSize(t.Size(), spectrum, samples)

	t.coefficients = t.fft.Coefficients(t.coefficients, samples)
	for i, value := range t.coefficients {
		spectrum[i] = PowerIndB[float32](value)
	}
}

func checkBlockSize(blockSize int, spectrum []float32, samples []complex128) {
	if len(samples) != blockSize {
		panic(fmt.Sprintf("the sample block must contain exactly %d samples: %d", blockSize, len(samples)))
	}
	if len(spectrum) != blockSize {
		panic(fmt.Sprintf("the spectrum slice must have the same length as the FFT's result: %d", blockSize))
	}
}

// IsPowerOfTwo indicates if the given block size can be used for the FFT.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
