// Package trace allows to write the inner state of the pipeline as semicolon separated lines to a file
// or to a UDP destination, for external inspection and plotting.
package trace

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
)

const (
	SpectrumContext = "spectrum"
	StatusContext   = "status"
)

type Tracer interface {
	Context() string
	Start()
	Trace(context string, format string, args ...any)
	Stop()
}

type NoTracer struct{}

func (t *NoTracer) Context() string              { return "" }
func (t *NoTracer) Start()                       {}
func (t *NoTracer) Trace(string, string, ...any) {}
func (t *NoTracer) Stop()                        {}

// New creates a tracer for the given destination. The destination has the form file:<filename> or udp:<host:port>.
func New(context string, destination string) (Tracer, error) {
	if destination == "" {
		return new(NoTracer), nil
	}

	protocol, target, found := strings.Cut(destination, ":")
	if !found {
		return nil, fmt.Errorf("invalid trace destination %q, use file:<filename> or udp:<host:port>", destination)
	}

	switch strings.ToLower(protocol) {
	case "file":
		return NewFileTracer(context, target), nil
	case "udp":
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			return nil, fmt.Errorf("cannot parse UDP destination: %w", err)
		}
		return NewUDPTracer(context, addr), nil
	default:
		return nil, fmt.Errorf("unknown trace protocol %q", protocol)
	}
}

// writerTracer writes the traces of one context into an io.WriteCloser.
type writerTracer struct {
	context string
	open    func() (io.WriteCloser, error)

	lock *sync.Mutex
	out  io.WriteCloser
}

func (t *writerTracer) Context() string {
	return t.context
}

func (t *writerTracer) Start() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out != nil {
		return
	}

	out, err := t.open()
	if err != nil {
		log.Printf("[ERROR] cannot start trace: %v", err)
		return
	}
	t.out = out
}

func (t *writerTracer) Trace(context string, format string, args ...any) {
	if context != t.context {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out == nil {
		return
	}

	fmt.Fprintf(t.out, format, args...)
}

func (t *writerTracer) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.out == nil {
		return
	}

	t.out.Close()
	t.out = nil
}

type FileTracer struct {
	writerTracer
}

func NewFileTracer(context string, filename string) *FileTracer {
	return &FileTracer{
		writerTracer: writerTracer{
			context: context,
			open: func() (io.WriteCloser, error) {
				return os.Create(filename)
			},
			lock: &sync.Mutex{},
		},
	}
}

type UDPTracer struct {
	writerTracer
}

func NewUDPTracer(context string, addr *net.UDPAddr) *UDPTracer {
	return &UDPTracer{
		writerTracer: writerTracer{
			context: context,
			open: func() (io.WriteCloser, error) {
				return net.DialUDP("udp", nil, addr)
			},
			lock: &sync.Mutex{},
		},
	}
}
