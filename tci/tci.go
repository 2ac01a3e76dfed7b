// Package tci shows the accepted spots on the panorama of an SDR console that speaks TCI.
package tci

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	tci "github.com/ftl/tci/client"

	"github.com/ftl/hamshack/spots"
)

const (
	defaultHostname = "localhost"
	defaultPort     = 40001
	timeout         = 10 * time.Second
	spotText        = "HamShack"

	DefaultRefreshInterval = time.Minute
)

// SpotSource provides the currently active spots.
type SpotSource interface {
	Spots() []spots.Spot
}

type panorama interface {
	Connected() bool
	AddSpot(label string, mode tci.Mode, frequency int, color tci.ARGB)
	DeleteSpot(label string)
}

type clientPanorama struct {
	client *tci.Client
}

func (p *clientPanorama) Connected() bool {
	return p.client.Connected()
}

func (p *clientPanorama) AddSpot(label string, mode tci.Mode, frequency int, color tci.ARGB) {
	p.client.AddSpot(label, mode, frequency, color, spotText)
}

func (p *clientPanorama) DeleteSpot(label string) {
	p.client.DeleteSpot(label)
}

// Publisher mirrors the active spots onto the panorama. Expired spots are removed with every refresh.
type Publisher struct {
	panorama        panorama
	source          SpotSource
	refreshInterval time.Duration
	published       map[string]bool

	opAsync chan func()
	close   chan struct{}
	closed  chan struct{}
}

func New(host string, source SpotSource, traceTCI bool) (*Publisher, error) {
	tcpHost, err := parseTCPAddrArg(host, defaultHostname, defaultPort)
	if err != nil {
		return nil, fmt.Errorf("invalid TCI host: %w", err)
	}
	if tcpHost.Port == 0 {
		tcpHost.Port = defaultPort
	}

	client := tci.KeepOpen(tcpHost, timeout, traceTCI)
	result := newPublisher(&clientPanorama{client: client}, source, DefaultRefreshInterval)
	client.Notify(&tciListener{publisher: result})

	log.Printf("[INFO] publishing spots to TCI host %s", tcpHost)
	return result, nil
}

func newPublisher(panorama panorama, source SpotSource, refreshInterval time.Duration) *Publisher {
	result := &Publisher{
		panorama:        panorama,
		source:          source,
		refreshInterval: refreshInterval,
		published:       make(map[string]bool),
		opAsync:         make(chan func(), 10),
		close:           make(chan struct{}),
		closed:          make(chan struct{}),
	}
	go result.run()
	return result
}

func (p *Publisher) Close() {
	select {
	case <-p.close:
		return
	default:
		close(p.close)
		<-p.closed
	}
}

func (p *Publisher) run() {
	defer close(p.closed)
	refresh := time.NewTicker(p.refreshInterval)
	defer refresh.Stop()

	for {
		select {
		case op := <-p.opAsync:
			op()
		case <-refresh.C:
			p.refresh()
		case <-p.close:
			p.clear()
			return
		}
	}
}

func (p *Publisher) doAsync(f func()) {
	select {
	case p.opAsync <- f:
	case <-p.closed:
	}
}

// SpotAdded shows the given spot on the panorama.
func (p *Publisher) SpotAdded(spot spots.Spot) {
	p.doAsync(func() {
		p.show(spot)
	})
}

func (p *Publisher) onConnected(connected bool) {
	p.doAsync(func() {
		if !connected {
			clear(p.published)
			return
		}
		p.refresh()
	})
}

func (p *Publisher) show(spot spots.Spot) {
	if !p.panorama.Connected() {
		return
	}
	p.panorama.AddSpot(spot.Callsign, spotMode(spot), int(spot.Frequency), spotColor(spot))
	p.published[spot.Callsign] = true
}

func (p *Publisher) refresh() {
	if !p.panorama.Connected() || p.source == nil {
		return
	}

	active := make(map[string]bool)
	for _, spot := range p.source.Spots() {
		active[spot.Callsign] = true
		p.show(spot)
	}
	for label := range p.published {
		if active[label] {
			continue
		}
		p.panorama.DeleteSpot(label)
		delete(p.published, label)
	}
}

func (p *Publisher) clear() {
	if !p.panorama.Connected() {
		return
	}
	for label := range p.published {
		p.panorama.DeleteSpot(label)
	}
	clear(p.published)
}

var (
	cwColor      tci.ARGB = tci.NewARGB(255, 255, 255, 0)
	phoneColor   tci.ARGB = tci.NewARGB(255, 0, 160, 255)
	digitalColor tci.ARGB = tci.NewARGB(255, 0, 255, 0)
	otherColor   tci.ARGB = tci.NewARGB(255, 255, 0, 0)
)

func spotMode(spot spots.Spot) tci.Mode {
	switch strings.ToUpper(spot.Mode) {
	case "CW":
		return tci.ModeCW
	case "SSB":
		if spot.Frequency < 10_000_000 {
			return tci.ModeLSB
		}
		return tci.ModeUSB
	case "USB":
		return tci.ModeUSB
	case "LSB":
		return tci.ModeLSB
	case "AM":
		return tci.ModeAM
	case "FM":
		return tci.ModeNFM
	case "FT8", "FT4", "JT65", "RTTY", "PSK31", "DIGI":
		return tci.ModeDIGU
	default:
		return tci.ModeCW
	}
}

func spotColor(spot spots.Spot) tci.ARGB {
	switch strings.ToUpper(spot.Mode) {
	case "CW":
		return cwColor
	case "SSB", "USB", "LSB", "AM", "FM":
		return phoneColor
	case "FT8", "FT4", "JT65", "RTTY", "PSK31", "DIGI":
		return digitalColor
	default:
		return otherColor
	}
}

type tciListener struct {
	publisher *Publisher
}

func (l *tciListener) Connected(connected bool) {
	log.Printf("[DEBUG] TCI connected: %t", connected)
	l.publisher.onConnected(connected)
}

// TCP address handling

func parseTCPAddrArg(arg string, defaultHost string, defaultPort int) (*net.TCPAddr, error) {
	host, port := splitHostPort(arg)
	if host == "" {
		host = defaultHost
	}
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}

	return net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port))
}

func splitHostPort(hostport string) (host, port string) {
	host = hostport

	colon := strings.LastIndexByte(host, ':')
	if colon != -1 && validOptionalPort(host[colon:]) {
		host, port = host[:colon], host[colon+1:]
	}

	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	return
}

func validOptionalPort(port string) bool {
	if port == "" {
		return true
	}
	if port[0] != ':' {
		return false
	}
	for _, b := range port[1:] {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}
