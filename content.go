package herald

import (
	"context"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/herald-mq/herald/pkg/uuidx"
)

// UserID identifies a publisher or subscriber. Opaque and comparable;
// the broker attaches no meaning to it beyond equality.
type UserID string

// Topic names a channel that content is published to and subscribed
// from.
type Topic string

// ConnID identifies one live transport connection. Handles are minted
// by the transport on connect and are associated with a user only once
// login succeeds.
type ConnID string

// NewConnID mints a fresh connection handle.
func NewConnID() ConnID {
	return ConnID(uuidx.NewString())
}

// Content is one published item. Values are immutable after creation:
// the topic log and every dispatch batch share the same value without
// further synchronization.
type Content struct {
	Author UserID          `json:"author"`
	Topic  Topic           `json:"topic"`
	Data   string          `json:"data"`
	SentAt strfmt.DateTime `json:"sentAt"`
}

// NewContent stamps a content item with the current publish time.
func NewContent(author UserID, topic Topic, data string) Content {
	return Content{
		Author: author,
		Topic:  topic,
		Data:   data,
		SentAt: strfmt.DateTime(time.Now()),
	}
}

// Notifier receives notification batches on behalf of one logged-in
// user. A batch is an ordered sequence of Content: either a topic's
// full backlog (on login or subscribe) or a single freshly published
// item (fan-out).
//
// Implementations run outside the broker's state lock. An error return
// or a panic is contained by the dispatcher: logged, never retried and
// never surfaced to the operation that triggered delivery.
type Notifier interface {
	Notify(ctx context.Context, batch []Content) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, batch []Content) error

func (f NotifierFunc) Notify(ctx context.Context, batch []Content) error {
	return f(ctx, batch)
}
