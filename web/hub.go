package web

import (
	"log"

	"github.com/google/uuid"
)

const subscriberBufferSize = 16

type subscriber struct {
	id  uuid.UUID
	out chan Message
}

// hub distributes the published messages to all subscribers. A subscriber that cannot take a message
// immediately is considered unresponsive: its channel is closed and it is dropped.
type hub struct {
	in          chan Message
	register    chan *subscriber
	unregister  chan uuid.UUID
	subscribers map[uuid.UUID]*subscriber

	shutdown chan struct{}
	closed   chan struct{}
}

func newHub() *hub {
	result := &hub{
		in:          make(chan Message),
		register:    make(chan *subscriber),
		unregister:  make(chan uuid.UUID),
		subscribers: make(map[uuid.UUID]*subscriber),
		shutdown:    make(chan struct{}),
		closed:      make(chan struct{}),
	}
	go result.run()
	return result
}

func (h *hub) run() {
	defer close(h.closed)

	for {
		select {
		case <-h.shutdown:
			for id, subscriber := range h.subscribers {
				close(subscriber.out)
				delete(h.subscribers, id)
			}
			return
		case subscriber := <-h.register:
			h.subscribers[subscriber.id] = subscriber
			log.Printf("[DEBUG] new subscriber %s, %d subscribers", subscriber.id, len(h.subscribers))
		case id := <-h.unregister:
			subscriber, ok := h.subscribers[id]
			if !ok {
				continue
			}
			close(subscriber.out)
			delete(h.subscribers, id)
			log.Printf("[DEBUG] subscriber %s left, %d subscribers", id, len(h.subscribers))
		case msg := <-h.in:
			for id, subscriber := range h.subscribers {
				select {
				case subscriber.out <- msg:
				default:
					log.Printf("[DEBUG] dropping unresponsive subscriber %s", id)
					close(subscriber.out)
					delete(h.subscribers, id)
				}
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned channel is closed when the subscriber is dropped
// or the hub is closed.
func (h *hub) Subscribe() (uuid.UUID, <-chan Message) {
	result := &subscriber{
		id:  uuid.New(),
		out: make(chan Message, subscriberBufferSize),
	}
	select {
	case h.register <- result:
	case <-h.closed:
		close(result.out)
	}
	return result.id, result.out
}

func (h *hub) Unsubscribe(id uuid.UUID) {
	select {
	case h.unregister <- id:
	case <-h.closed:
	}
}

func (h *hub) Publish(msg Message) {
	select {
	case h.in <- msg:
	case <-h.closed:
	}
}

func (h *hub) Close() {
	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	<-h.closed
}
