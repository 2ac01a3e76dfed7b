package sdr

import (
	"log"
	"time"

	"github.com/ftl/hamshack/dsp"
	"github.com/ftl/hamshack/trace"
)

// worker runs the acquisition loop for one running period of the controller.
type worker struct {
	config   Config
	source   SignalSource
	interval time.Duration
	clock    Clock
	tracer   trace.Tracer

	frames  chan<- *Frame
	stop    <-chan struct{}
	stopped chan struct{}
}

func (w *worker) run() {
	defer close(w.stopped)
	defer log.Printf("[DEBUG] acquisition on %s stopped", w.config.Device)

	log.Printf("[DEBUG] acquisition on %s started @ %d Hz", w.config.Device, w.config.Frequency)

	transformer := newTransformer(w.config)
	samples := make([]complex128, transformer.Size())

	for {
		select {
		case <-w.stop:
			return
		case <-time.After(w.interval):
		}

		err := w.source.ReadBlock(samples, w.config)
		if err != nil {
			log.Printf("[ERROR] cannot read the next sample block from %s: %v", w.config.Device, err)
			return
		}

		spectrum := make([]float32, transformer.Size())
		transformer.Transform(spectrum, samples)
		frame := &Frame{
			Frequency: w.config.Frequency,
			Spectrum:  spectrum,
			Timestamp: w.clock.Now(),
		}

		select {
		case w.frames <- frame:
		case <-w.stop:
			return
		}

		w.trace(frame)
	}
}

func (w *worker) trace(frame *Frame) {
	if w.tracer.Context() != trace.SpectrumContext {
		return
	}
	peakValue, peakBin := dsp.Block[float32](frame.Spectrum).Max(0, len(frame.Spectrum)-1)
	w.tracer.Trace(trace.SpectrumContext, "%s;%d;%d;%.2f\n", frame.Timestamp.Format(time.RFC3339Nano), frame.Frequency, peakBin, peakValue)
}
