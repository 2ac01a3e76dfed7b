// Package telnet provides a minimal DX cluster that announces the accepted spots to all connected telnet clients.
package telnet

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ftl/hamshack/spots"
)

const (
	newConnectionDeadline     = 100 * time.Millisecond
	connectionKeepAlivePeriod = 30 * time.Second
	readBufferSize            = 1024
	DefaultSilencePeriod      = 4 * time.Minute
	maxListedSpots            = 10
)

// SpotSource provides the currently active spots for the SH/DX command.
type SpotSource interface {
	Spots() []spots.Spot
}

type spotKey uint64

func newSpotKey(callsign string, frequency float64) spotKey {
	hash := fnv.New64a()
	fmt.Fprintf(hash, "%s-%.0f", callsign, frequency/1000.0)
	return spotKey(hash.Sum64())
}

type Server struct {
	listener *net.TCPListener
	mycall   string
	version  string
	source   SpotSource

	connections []*Connection

	lock          *sync.Mutex
	lastSpots     map[spotKey]time.Time
	silencePeriod time.Duration

	msg    chan []byte
	close  chan struct{}
	closed chan struct{}
}

func NewServer(address string, mycall string, version string, source SpotSource) (*Server, error) {
	result := &Server{
		mycall:        mycall,
		version:       version,
		source:        source,
		lock:          &sync.Mutex{},
		lastSpots:     make(map[spotKey]time.Time),
		silencePeriod: DefaultSilencePeriod,
		msg:           make(chan []byte, 1),
		close:         make(chan struct{}),
		closed:        make(chan struct{}),
	}

	localAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("invalid cluster address %q: %w", address, err)
	}

	listener, err := net.ListenTCP("tcp", localAddress)
	if err != nil {
		return nil, err
	}
	result.listener = listener
	log.Printf("[INFO] DX cluster listening on %s", listener.Addr())

	go result.run()

	return result, nil
}

// Addr returns the address the server is actually listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) run() {
	defer close(s.closed)
	defer s.listener.Close()
	welcome := fmt.Sprintf("HamShack Version %s\n", s.version)

	removeConnections := make([]int, 0, 10)
	for {
		select {
		case <-s.close:
			for _, conn := range s.connections {
				conn.Close()
			}
			return
		case bytes := <-s.msg:
			removeConnections = removeConnections[:0]
			for i, conn := range s.connections {
				_, err := conn.Write(bytes)
				if err != nil {
					log.Printf("[DEBUG] found closed connection %s", conn.String())
					removeConnections = append(removeConnections, i)
				}
			}

			for i, index := range removeConnections {
				s.removeConnection(index - i)
			}
		default:
			err := s.listener.SetDeadline(time.Now().Add(newConnectionDeadline))
			if err != nil {
				log.Printf("[ERROR] setting the listener deadline failed: %v", err)
				return
			}
			conn, err := s.listener.AcceptTCP()
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// nobody is calling
				continue
			} else if err != nil {
				log.Printf("[ERROR] cannot accept connection: %v", err)
				continue
			}

			log.Printf("[INFO] new incoming connection: %v", conn.RemoteAddr())
			conn.SetKeepAlivePeriod(connectionKeepAlivePeriod)
			conn.SetKeepAlive(true)
			connection := NewConnection(conn, welcome, s.mycall, s.listSpots)
			s.connections = append(s.connections, connection)
		}
	}
}

func (s *Server) removeConnection(index int) {
	if index < 0 || index >= len(s.connections) {
		return
	}
	log.Printf("[DEBUG] removing connection %s", s.connections[index].String())
	last := len(s.connections) - 1
	if index < last {
		copy(s.connections[index:], s.connections[index+1:])
	}
	s.connections[last] = nil
	s.connections = s.connections[:last]
}

func (s *Server) Stop() {
	select {
	case <-s.closed:
		return
	default:
		close(s.close)
		<-s.closed
	}
}

func (s *Server) SetSilencePeriod(silencePeriod time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.silencePeriod = silencePeriod
}

// SpotAdded announces the given spot, unless the same callsign was announced on the same kHz within the silence period.
func (s *Server) SpotAdded(spot spots.Spot) {
	key := newSpotKey(spot.Callsign, spot.Frequency)
	if !s.shouldAnnounce(key, spot.Timestamp) {
		return
	}

	select {
	case s.msg <- []byte(s.formatSpotMessage(spot)):
	case <-s.closed:
	}
}

func (s *Server) shouldAnnounce(key spotKey, timestamp time.Time) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	lastSpotTime, ok := s.lastSpots[key]
	if ok && timestamp.Sub(lastSpotTime) <= s.silencePeriod {
		return false
	}
	s.lastSpots[key] = timestamp
	s.pruneLastSpots(timestamp)
	return true
}

// pruneLastSpots removes the keys that are silent no more at the given time.
func (s *Server) pruneLastSpots(now time.Time) {
	for key, lastSpotTime := range s.lastSpots {
		if now.Sub(lastSpotTime) > s.silencePeriod {
			delete(s.lastSpots, key)
		}
	}
}

func (s *Server) formatSpotMessage(spot spots.Spot) string {
	spotter := spot.Spotter
	if spotter == "" {
		spotter = s.mycall
	}
	prefix := fmt.Sprintf("DX de %s:", spotter)
	return fmt.Sprintf("%-16s% 8.1f  %-13s%-31s%-4sz\n", prefix, spot.Frequency/1000.0, spot.Callsign, spotComment(spot), spot.Timestamp.UTC().Format("1504"))
}

func spotComment(spot spots.Spot) string {
	fields := make([]string, 0, 3)
	if spot.Mode != "" {
		fields = append(fields, spot.Mode)
	}
	if spot.SNR != nil {
		fields = append(fields, fmt.Sprintf("%d dB", *spot.SNR))
	}
	if spot.Grid != "" {
		fields = append(fields, spot.Grid)
	}
	return strings.Join(fields, " ")
}

// listSpots renders the most recent active spots, newest first.
func (s *Server) listSpots() string {
	if s.source == nil {
		return ""
	}
	active := s.source.Spots()
	sort.Slice(active, func(i, j int) bool {
		return active[i].Timestamp.After(active[j].Timestamp)
	})
	if len(active) > maxListedSpots {
		active = active[:maxListedSpots]
	}

	var result strings.Builder
	for _, spot := range active {
		result.WriteString(s.formatSpotMessage(spot))
	}
	return result.String()
}

var ErrClosed = errors.New("connection already closed")

// Prompt asks the user for input. Answer returns the response and the next prompt.
// A nil prompt ends the session.
type Prompt struct {
	Question string
	Answer   func(string) (string, *Prompt)
}

type Connection struct {
	conn    io.ReadWriteCloser
	welcome string
	mycall  string
	list    func() string
	msg     chan []byte
	input   chan []byte

	currentPrompt *Prompt
	currentAnswer string

	close  chan struct{}
	closed chan struct{}

	user string
}

func NewConnection(conn io.ReadWriteCloser, welcome string, mycall string, list func() string) *Connection {
	result := &Connection{
		conn:    conn,
		welcome: welcome,
		mycall:  mycall,
		list:    list,
		msg:     make(chan []byte, 1),
		input:   make(chan []byte, 1),

		close:  make(chan struct{}),
		closed: make(chan struct{}),
	}

	go result.run()
	go result.readLoop()

	return result
}

func (c *Connection) run() {
	defer close(c.closed)
	defer func() {
		err := c.conn.Close()
		if err != nil {
			log.Printf("[DEBUG] close %s: %v", c.user, err)
		}
	}()

	err := c.writeAll([]byte(c.welcome))
	if err != nil {
		log.Printf("[ERROR] %s: %v", c.user, err)
		return
	}
	err = c.startPrompt(c.callsignPrompt())
	if err != nil {
		log.Printf("[ERROR] %s: %v", c.user, err)
		return
	}

	for {
		select {
		case <-c.close:
			return
		case bytes := <-c.msg:
			err := c.writeAll(bytes)
			if err != nil {
				log.Printf("[ERROR] %s: %v", c.user, err)
				return
			}
		case bytes := <-c.input:
			for i := 0; i < len(bytes); i++ {
				response, nextPrompt, answered := c.parseAnswerByte(bytes[i])
				if !answered {
					continue
				}
				if response != "" {
					err := c.writeAll([]byte(response))
					if err != nil {
						log.Printf("[ERROR] %s: %v", c.user, err)
						return
					}
				}
				if nextPrompt == nil {
					log.Printf("[INFO] %s logged out", c.user)
					return
				}

				err := c.startPrompt(nextPrompt)
				if err != nil {
					log.Printf("[ERROR] %s: %v", c.user, err)
					return
				}
			}
		}
	}
}

func (c *Connection) callsignPrompt() *Prompt {
	return &Prompt{
		Question: "Enter your callsign: ",
		Answer: func(answer string) (string, *Prompt) {
			c.user = strings.ToUpper(strings.TrimSpace(answer))
			return fmt.Sprintf("welcome %s\n", c.user), c.commandPrompt()
		},
	}
}

func (c *Connection) commandPrompt() *Prompt {
	result := &Prompt{
		Question: fmt.Sprintf("%s de %s >\n", c.user, c.mycall),
	}
	result.Answer = func(answer string) (string, *Prompt) {
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "":
			return "", result
		case "sh/dx", "show/dx":
			return c.list(), result
		case "bye", "quit", "q":
			return fmt.Sprintf("73 %s\n", c.user), nil
		default:
			return fmt.Sprintf("unknown command: %s\n", strings.TrimSpace(answer)), result
		}
	}
	return result
}

func (c *Connection) readLoop() {
	readBuffer := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(readBuffer)
		if errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return
		} else if err != nil {
			log.Printf("[DEBUG] %s: %v", c.user, err)
			return
		}

		if n == 0 {
			continue
		}

		bytes := make([]byte, n)
		copy(bytes, readBuffer[:n])
		select {
		case c.input <- bytes:
		case <-c.closed:
			return
		}
	}
}

func (c *Connection) writeAll(bytes []byte) error {
	buffer := bytes
	for len(buffer) > 0 {
		n, err := c.conn.Write(buffer)
		if err != nil {
			return err
		}
		buffer = buffer[n:]
	}
	return nil
}

func (c *Connection) startPrompt(prompt *Prompt) error {
	c.currentPrompt = prompt
	return c.writeAll([]byte(prompt.Question))
}

func (c *Connection) parseAnswerByte(answerByte byte) (string, *Prompt, bool) {
	switch answerByte {
	case '\r':
		return "", nil, false
	case '\n':
		response, nextPrompt := c.currentPrompt.Answer(c.currentAnswer)
		c.currentAnswer = ""
		return response, nextPrompt, true
	default:
		c.currentAnswer += string(answerByte)
		return "", nil, false
	}
}

func (c *Connection) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.close)
		<-c.closed
	}
}

func (c *Connection) Write(bytes []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}

	select {
	case <-c.closed:
		return 0, ErrClosed
	case c.msg <- bytes:
		return len(bytes), nil
	}
}

func (c *Connection) String() string {
	return c.user
}
