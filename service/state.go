package service

import (
	"github.com/herald-mq/herald"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// session is the live binding of a user to one connection and one
// notification callback. At most one exists per user at a time.
type session struct {
	conn   herald.ConnID
	notify herald.Notifier
}

// topicSet is an insertion-ordered set of topics. Order matters only
// for determinism: login replays backlogs in subscription order.
type topicSet = orderedmap.OrderedMap[herald.Topic, struct{}]

// brokerState holds every registry the operations consult. All access
// happens under Service.mu; none of these helpers lock on their own.
type brokerState struct {
	// topic registry and per-topic append-only log, in creation order
	topics *orderedmap.OrderedMap[herald.Topic, []herald.Content]
	// per-user subscription sets, created at first login and kept
	// across disconnects
	subs map[herald.UserID]*topicSet
	// live sessions and the reverse index used by disconnect cleanup
	sessions map[herald.UserID]*session
	users    map[herald.ConnID]herald.UserID
	// handles announced by the transport but not yet bound to a user
	live map[herald.ConnID]struct{}
}

func newBrokerState() brokerState {
	return brokerState{
		topics:   orderedmap.New[herald.Topic, []herald.Content](),
		subs:     make(map[herald.UserID]*topicSet),
		sessions: make(map[herald.UserID]*session),
		users:    make(map[herald.ConnID]herald.UserID),
		live:     make(map[herald.ConnID]struct{}),
	}
}

func (st *brokerState) topicExists(topic herald.Topic) bool {
	_, ok := st.topics.Get(topic)
	return ok
}

func (st *brokerState) appendContent(content herald.Content) {
	log, _ := st.topics.Get(content.Topic)
	st.topics.Set(content.Topic, append(log, content))
}

// backlog returns a copy of the topic's log so the caller can hand it
// to the dispatcher after the lock is released.
func (st *brokerState) backlog(topic herald.Topic) []herald.Content {
	log, ok := st.topics.Get(topic)
	if !ok || len(log) == 0 {
		return nil
	}
	out := make([]herald.Content, len(log))
	copy(out, log)
	return out
}

// subscriptionsOf returns the user's subscription set, creating an
// empty one on first use.
func (st *brokerState) subscriptionsOf(user herald.UserID) *topicSet {
	set, ok := st.subs[user]
	if !ok {
		set = orderedmap.New[herald.Topic, struct{}]()
		st.subs[user] = set
	}
	return set
}

func (st *brokerState) isSubscribed(user herald.UserID, topic herald.Topic) bool {
	set, ok := st.subs[user]
	if !ok {
		return false
	}
	_, ok = set.Get(topic)
	return ok
}

// subscribers returns, in no particular order, the notifier of every
// user that is both subscribed to the topic and currently logged in.
func (st *brokerState) subscribers(topic herald.Topic) []delivery {
	var out []delivery
	for user, sess := range st.sessions {
		if st.isSubscribed(user, topic) {
			out = append(out, delivery{user: user, notify: sess.notify})
		}
	}
	return out
}
