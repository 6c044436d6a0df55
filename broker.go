package herald

import (
	"context"
	"errors"
)

var (
	// ErrNotAuthorized is returned by CreateTopic when the caller is not
	// the administrator identity.
	ErrNotAuthorized = errors.New("only the administrator can create topics")
	// ErrTopicExists is returned by CreateTopic for a name that is
	// already registered. Creation is idempotent-failing: the existing
	// topic is left untouched.
	ErrTopicExists = errors.New("topic already exists")
)

// Broker is the public operation surface of the pub/sub engine. All
// methods are safe for concurrent use; each operation is atomic with
// respect to every other operation.
//
// Validation outcomes (unknown topic, duplicate login, unauthorized
// creation) are reported through the boolean or error return, never as
// panics. Notification delivery triggered by Login, Publish and
// SubscribeTo is asynchronous: the call returns once the state change
// is durable in memory, not once subscribers have been notified.
type Broker interface {
	// CreateTopic registers a new topic with an empty log. Only the
	// administrator identity may create topics. Returns
	// ErrNotAuthorized or ErrTopicExists on validation failure.
	CreateTopic(ctx context.Context, caller UserID, name Topic) error

	// Login binds user to the given connection and notifier. It fails
	// (false) when a live session already exists for the user, leaving
	// that session untouched. On success every topic in the user's
	// subscription set has its full backlog dispatched to the notifier,
	// one asynchronous batch per topic.
	Login(ctx context.Context, user UserID, conn ConnID, notify Notifier) bool

	// ListTopics returns a snapshot of all registered topic names in
	// creation order.
	ListTopics(ctx context.Context) []Topic

	// Publish appends a new Content to the topic's log and fans it out,
	// as a single-item batch, to every currently subscribed and
	// currently logged-in user. False when the topic does not exist.
	Publish(ctx context.Context, author UserID, topic Topic, data string) bool

	// SubscribeTo adds topic to the user's subscription set and
	// dispatches the topic's full current backlog to the user's
	// notifier. Subscribing again to the same topic is deduplicated but
	// still replays the backlog. False when the topic does not exist.
	SubscribeTo(ctx context.Context, user UserID, topic Topic) bool

	// UnsubscribeTo removes topic from the user's subscription set.
	// False when the topic does not exist, even if the user was never
	// subscribed; this mirrors SubscribeTo's validation, it is not a
	// statement about subscription state.
	UnsubscribeTo(ctx context.Context, user UserID, topic Topic) bool

	// OnConnect records a live transport handle. Called by the
	// transport when a connection is established.
	OnConnect(conn ConnID)

	// OnDisconnect tears down the session bound to conn, if any. The
	// user's subscription set survives, so a later Login resumes it.
	// Unknown handles are a no-op.
	OnDisconnect(conn ConnID)
}
