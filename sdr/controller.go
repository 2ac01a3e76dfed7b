package sdr

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ftl/hamshack/trace"
)

const (
	// FrameBufferSize is the capacity of the channel between the worker and the controller.
	FrameBufferSize = 100
	// DefaultInterval is the time between two acquisition cycles.
	DefaultInterval = 100 * time.Millisecond
)

type SourceFactory func() SignalSource

func NewSyntheticSourceFactory() SourceFactory {
	return func() SignalSource {
		return NewSyntheticSource(nil)
	}
}

// Controller owns the configuration and the lifecycle of the acquisition pipeline.
// All methods are safe for concurrent use.
type Controller struct {
	lock *sync.Mutex

	config   Config
	running  bool
	frames   <-chan *Frame
	stop     chan struct{}
	stopped  chan struct{}
	interval time.Duration
	clock    Clock
	tracer   trace.Tracer
	sources  SourceFactory
}

func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Transform == "" {
		config.Transform = GoDSPTransform
	}

	return &Controller{
		lock:     &sync.Mutex{},
		config:   config,
		interval: DefaultInterval,
		clock:    WallClock,
		tracer:   new(trace.NoTracer),
		sources:  NewSyntheticSourceFactory(),
	}, nil
}

// SetInterval sets the time between two acquisition cycles. It takes effect with the next start.
func (c *Controller) SetInterval(interval time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.interval = interval
}

// SetClock sets the clock used to timestamp the frames. It takes effect with the next start.
func (c *Controller) SetClock(clock Clock) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.clock = clock
}

// SetTracer sets the tracer for the produced frames. It takes effect with the next start.
func (c *Controller) SetTracer(tracer trace.Tracer) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tracer = tracer
}

// SetSourceFactory sets the factory for the signal source of each worker. It takes effect with the next start.
func (c *Controller) SetSourceFactory(sources SourceFactory) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sources = sources
}

// Start spawns a new acquisition worker that uses a copy of the current configuration.
func (c *Controller) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	log.Printf("[INFO] starting SDR: %s @ %d Hz", c.config.Device, c.config.Frequency)

	frames := make(chan *Frame, FrameBufferSize)
	stop := make(chan struct{})
	w := &worker{
		config:   c.config,
		source:   c.sources(),
		interval: c.interval,
		clock:    c.clock,
		tracer:   c.tracer,
		frames:   frames,
		stop:     stop,
		stopped:  make(chan struct{}),
	}
	go w.run()

	c.frames = frames
	c.stop = stop
	c.stopped = w.stopped
	c.running = true
	return nil
}

// Stop signals the worker to terminate and returns immediately. The worker exits within one acquisition cycle.
func (c *Controller) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	_, err := c.stopWorker()
	return err
}

// StopAndWait signals the worker to terminate and waits until it has exited or the context is done.
// The pipeline is idle afterwards in any case.
func (c *Controller) StopAndWait(ctx context.Context) error {
	c.lock.Lock()
	stopped, err := c.stopWorker()
	c.lock.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker did not confirm termination: %w", ctx.Err())
	}
}

func (c *Controller) stopWorker() (<-chan struct{}, error) {
	if !c.running {
		return nil, ErrNotRunning
	}

	log.Printf("[INFO] stopping SDR")
	close(c.stop)
	stopped := c.stopped

	c.frames = nil
	c.stop = nil
	c.stopped = nil
	c.running = false
	return stopped, nil
}

// SetFrequency changes the center frequency in the configuration. The running worker keeps the
// configuration it was started with: Status reports the new frequency immediately, but the frames
// keep reporting the old frequency until the pipeline is stopped and started again.
func (c *Controller) SetFrequency(frequency int) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	if frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %d: %w", frequency, ErrInvalidConfig)
	}

	log.Printf("[INFO] tuning to %d Hz", frequency)
	c.config.Frequency = frequency
	return nil
}

func (c *Controller) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	return Status{
		Running:    c.running,
		Frequency:  c.config.Frequency,
		SampleRate: c.config.SampleRate,
		Gain:       c.config.Gain,
	}
}

func (c *Controller) Config() Config {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.config
}

// SpectrumData returns the next available frame without blocking. It returns false if the pipeline is
// not running or no frame is available.
func (c *Controller) SpectrumData() (*Frame, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.running {
		return nil, false
	}

	select {
	case frame := <-c.frames:
		return frame, true
	default:
		return nil, false
	}
}
