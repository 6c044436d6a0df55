package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fogfish/opts"
	"github.com/herald-mq/herald"
)

// DefaultAdmin is the administrator identity used when WithAdmin is
// not given. It matches the identity the console loop publishes as.
const DefaultAdmin herald.UserID = "admin"

const (
	defaultDispatchWorkers = 4
	defaultDispatchQueue   = 64
)

// Option configures a Service.
type Option = opts.Option[Service]

var (
	// WithAdmin sets the administrator identity allowed to create topics.
	WithAdmin = opts.ForName[Service, herald.UserID]("admin")
	// WithLogger sets the logger used by the service and its dispatcher.
	WithLogger = opts.ForName[Service, *slog.Logger]("log")
	// WithDispatchWorkers sets the size of the dispatch worker pool.
	WithDispatchWorkers = opts.ForName[Service, int]("dispatchWorkers")
	// WithDispatchQueue sets the depth of the dispatch queue.
	WithDispatchQueue = opts.ForName[Service, int]("dispatchQueue")
)

// Service is the broker engine. It owns the shared state and the
// dispatcher and implements herald.Broker. The zero value is not
// usable; construct with New.
type Service struct {
	admin           herald.UserID
	log             *slog.Logger
	dispatchWorkers int
	dispatchQueue   int

	mu       sync.RWMutex
	state    brokerState
	dispatch *dispatcher
}

// New creates a broker service and starts its dispatch pool.
func New(options ...Option) *Service {
	svc := &Service{
		admin:           DefaultAdmin,
		log:             slog.Default(),
		dispatchWorkers: defaultDispatchWorkers,
		dispatchQueue:   defaultDispatchQueue,
		state:           newBrokerState(),
	}
	if err := opts.Apply(svc, options); err != nil {
		panic(err)
	}
	svc.dispatch = newDispatcher(svc.dispatchWorkers, svc.dispatchQueue, svc.log)
	return svc
}

// Close drains the dispatcher. Call only once all operations have
// returned; it is a shutdown aid, not part of the broker contract.
func (s *Service) Close() {
	s.dispatch.close()
}

// CreateTopic implements herald.Broker.
func (s *Service) CreateTopic(ctx context.Context, caller herald.UserID, name herald.Topic) error {
	if caller != s.admin {
		return herald.ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.topicExists(name) {
		return herald.ErrTopicExists
	}
	s.state.topics.Set(name, nil)
	s.log.Info("topic created", slog.String("topic", string(name)))
	return nil
}

// ListTopics implements herald.Broker.
func (s *Service) ListTopics(ctx context.Context) []herald.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]herald.Topic, 0, s.state.topics.Len())
	for pair := s.state.topics.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Publish implements herald.Broker.
func (s *Service) Publish(ctx context.Context, author herald.UserID, topic herald.Topic, data string) bool {
	s.mu.Lock()
	if !s.state.topicExists(topic) {
		s.mu.Unlock()
		return false
	}
	content := herald.NewContent(author, topic, data)
	s.state.appendContent(content)
	recipients := s.state.subscribers(topic)
	s.mu.Unlock()

	for _, r := range recipients {
		r.batch = []herald.Content{content}
		s.dispatch.enqueue(r)
	}
	return true
}

// SubscribeTo implements herald.Broker.
func (s *Service) SubscribeTo(ctx context.Context, user herald.UserID, topic herald.Topic) bool {
	s.mu.Lock()
	if !s.state.topicExists(topic) {
		s.mu.Unlock()
		return false
	}
	// Deduplicated: a repeat subscribe only re-triggers backlog replay.
	s.state.subscriptionsOf(user).Set(topic, struct{}{})

	backlog := s.state.backlog(topic)
	var notify herald.Notifier
	if sess, ok := s.state.sessions[user]; ok {
		notify = sess.notify
	}
	s.mu.Unlock()

	s.dispatch.enqueue(delivery{user: user, notify: notify, batch: backlog})
	return true
}

// UnsubscribeTo implements herald.Broker.
func (s *Service) UnsubscribeTo(ctx context.Context, user herald.UserID, topic herald.Topic) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.topicExists(topic) {
		return false
	}
	if set, ok := s.state.subs[user]; ok {
		set.Delete(topic)
	}
	return true
}

var _ herald.Broker = (*Service)(nil)
