package service

import (
	"context"
	"log/slog"

	"github.com/herald-mq/herald"
)

// Login implements herald.Broker. It enforces the single-session
// invariant: a second login for a user with a live session fails
// without touching the existing session. On success the full backlog
// of every subscribed topic is replayed asynchronously, one batch per
// topic; batches for different topics may arrive in any order.
func (s *Service) Login(ctx context.Context, user herald.UserID, conn herald.ConnID, notify herald.Notifier) bool {
	s.mu.Lock()
	if _, ok := s.state.sessions[user]; ok {
		s.mu.Unlock()
		return false
	}

	s.state.sessions[user] = &session{conn: conn, notify: notify}
	s.state.users[conn] = user
	delete(s.state.live, conn)

	set := s.state.subscriptionsOf(user)
	replays := make([]delivery, 0, set.Len())
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		replays = append(replays, delivery{
			user:   user,
			notify: notify,
			batch:  s.state.backlog(pair.Key),
		})
	}
	s.mu.Unlock()

	for _, r := range replays {
		s.dispatch.enqueue(r)
	}
	s.log.Info("user logged in",
		slog.String("user", string(user)),
		slog.String("conn", string(conn)),
	)
	return true
}

// OnConnect implements herald.Broker. The handle stays unbound until a
// Login succeeds over it.
func (s *Service) OnConnect(conn herald.ConnID) {
	s.mu.Lock()
	s.state.live[conn] = struct{}{}
	s.mu.Unlock()
}

// OnDisconnect implements herald.Broker. It removes the session bound
// to the handle so future publishes stop attempting delivery, and
// leaves the user's subscription set intact: a later Login resumes the
// same subscriptions and replays their backlog. A disconnect before
// login, or for an unknown handle, is a no-op.
//
// An in-flight dispatch that already captured the callback may still
// attempt delivery after disconnect; its failure is contained by the
// dispatcher.
func (s *Service) OnDisconnect(conn herald.ConnID) {
	s.mu.Lock()
	delete(s.state.live, conn)
	user, bound := s.state.users[conn]
	if bound {
		delete(s.state.users, conn)
		delete(s.state.sessions, user)
	}
	s.mu.Unlock()

	if bound {
		s.log.Info("user disconnected",
			slog.String("user", string(user)),
			slog.String("conn", string(conn)),
		)
	}
}
