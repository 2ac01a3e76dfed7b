package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/hamshack/config"
	"github.com/ftl/hamshack/dsp"
	"github.com/ftl/hamshack/sdr"
	"github.com/ftl/hamshack/trace"
)

var spectrumFlags = struct {
	frames    int
	frequency int
	fftSize   int
	transform string
}{}

var spectrumCmd = &cobra.Command{
	Use:   "spectrum",
	Short: "run the acquisition pipeline locally and print a summary of each spectrum frame",
	Run:   runWithCtx(runSpectrum),
}

func init() {
	rootCmd.AddCommand(spectrumCmd)

	spectrumCmd.Flags().IntVar(&spectrumFlags.frames, "frames", 10, "the number of frames to print")
	spectrumCmd.Flags().IntVar(&spectrumFlags.frequency, "frequency", sdr.DefaultFrequency, "the center frequency in Hz")
	spectrumCmd.Flags().IntVar(&spectrumFlags.fftSize, "fft-size", sdr.DefaultFFTSize, "the number of samples per FFT block, a power of two")
	spectrumCmd.Flags().StringVar(&spectrumFlags.transform, "transform", string(sdr.GoDSPTransform), "godsp | gonum")

	bindFlags(spectrumCmd.Flags(), "sdr", map[string]string{
		"frequency": "frequency",
		"fft-size":  "fft_size",
		"transform": "transform",
	})
}

func runSpectrum(ctx context.Context, cfg *config.Config, _ *cobra.Command, _ []string) {
	tracer, err := trace.New(cfg.Trace.Context, cfg.Trace.Destination)
	if err != nil {
		log.Fatalf("cannot create tracer: %v", err)
	}
	tracer.Start()
	defer tracer.Stop()

	controller, err := sdr.NewController(cfg.SDRConfig())
	if err != nil {
		log.Fatalf("cannot create SDR: %v", err)
	}
	controller.SetInterval(cfg.SDR.Interval)
	controller.SetTracer(tracer)
	if err := controller.Start(); err != nil {
		log.Fatalf("cannot start SDR: %v", err)
	}
	defer stopController(controller)

	status := controller.Status()
	fmt.Fprintf(os.Stdout, "%s @ %d Hz, %d samples/s, FFT size %d (%s)\n", cfg.SDR.Device, status.Frequency, status.SampleRate, cfg.SDR.FFTSize, cfg.SDR.Transform)

	poll := time.NewTicker(cfg.SDR.Interval / 2)
	defer poll.Stop()
	for count := 0; count < spectrumFlags.frames; {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
		}

		frame, ok := controller.SpectrumData()
		if !ok {
			continue
		}
		count++
		printFrameSummary(os.Stdout, frame, status.SampleRate)
	}
}

func printFrameSummary(w io.Writer, frame *sdr.Frame, sampleRate int) {
	spectrum := dsp.Block[float32](dsp.Centered(frame.Spectrum))
	mapping := dsp.NewFrequencyMapping(sampleRate, spectrum.Size(), frame.Frequency)
	peakValue, peakBin := spectrum.Max(0, spectrum.Size()-1)
	centerValue := spectrum[mapping.FrequencyToBin(frame.Frequency)]

	var sum float64
	for _, value := range spectrum {
		sum += float64(value)
	}
	mean := sum / float64(spectrum.Size())

	fmt.Fprintf(w, "%s  %d Hz  center %.2f dB  peak %.2f dB @ %d Hz  mean %.2f dB\n",
		frame.Timestamp.Format("15:04:05.000"),
		frame.Frequency,
		centerValue,
		peakValue,
		mapping.BinToFrequency(peakBin, dsp.BinCenter),
		mean,
	)
}
