// Package events publishes post lifecycle events on NATS.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectPostCreated = "post.created"
	SubjectPostUpdated = "post.updated"
	SubjectPostDeleted = "post.deleted"
	SubjectPostRated   = "post.rated"
)

type PostEvent struct {
	PostID    uint     `json:"post_id"`
	AuthorID  uint     `json:"author_id"`
	Title     string   `json:"title,omitempty"`
	Category  string   `json:"category,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Timestamp string   `json:"timestamp"`
}

type RatingEvent struct {
	PostID    uint    `json:"post_id"`
	UserID    uint    `json:"user_id"`
	Score     int     `json:"score"`
	Average   float64 `json:"average"`
	Timestamp string  `json:"timestamp"`
}

// Publisher sends an event payload to a subject.
type Publisher interface {
	Publish(subject string, event any) error
}

// drainTimeout bounds how long Close waits for buffered messages to flush.
const drainTimeout = 10 * time.Second

type NATS struct {
	conn   *nats.Conn
	closed chan struct{}
}

func Connect(url string) (*NATS, error) {
	closed := make(chan struct{})
	conn, err := nats.Connect(url,
		nats.Name("quillpost"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{conn: conn, closed: closed}, nil
}

func (n *NATS) Publish(subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.conn.Publish(subject, payload)
}

// Close flushes pending messages and returns once the connection is closed.
func (n *NATS) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
	select {
	case <-n.closed:
	case <-time.After(drainTimeout + time.Second):
		n.conn.Close()
	}
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(string, any) error { return nil }

// Now formats the event timestamp.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
