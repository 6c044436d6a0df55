package natsrpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"
	"github.com/herald-mq/herald"
	"github.com/herald-mq/herald/pkg/slogx"
	"github.com/nats-io/nats.go"
)

// ServerOption configures a Server.
type ServerOption = opts.Option[Server]

// WithServerLogger sets the logger used by the server.
var WithServerLogger = opts.ForName[Server, *slog.Logger]("log")

// Server binds a herald.Broker to the NATS wire. Each rpc subject gets
// one handler; handlers decode the envelope, call the broker and
// respond. Handlers run on the NATS delivery goroutines, which is safe
// because every broker operation is internally synchronized and
// returns without waiting on subscriber callbacks.
type Server struct {
	nc  *nats.Conn
	brk herald.Broker
	log *slog.Logger

	// live connection handles, minted by connect and retired by
	// disconnect; login validates its handle against this map
	conns *haxmap.Map[string, int64]
	subs  []*nats.Subscription
}

// NewServer creates a transport server for the given broker.
func NewServer(nc *nats.Conn, brk herald.Broker, options ...ServerOption) *Server {
	srv := &Server{
		nc:    nc,
		brk:   brk,
		log:   slog.Default(),
		conns: haxmap.New[string, int64](),
	}
	if err := opts.Apply(srv, options); err != nil {
		panic(err)
	}
	srv.log = srv.log.With(slogx.LoggerName("natsrpc"))
	return srv
}

// Listen subscribes every rpc subject. It returns once the
// subscriptions are registered; handlers then run until Close.
func (s *Server) Listen() error {
	handlers := map[string]nats.MsgHandler{
		SubjectConnect:     s.handleConnect,
		SubjectDisconnect:  s.handleDisconnect,
		SubjectCreateTopic: s.handleCreateTopic,
		SubjectLogin:       s.handleLogin,
		SubjectListTopics:  s.handleListTopics,
		SubjectPublish:     s.handlePublish,
		SubjectSubscribe:   s.handleSubscribe,
		SubjectUnsubscribe: s.handleUnsubscribe,
	}
	for subject, handler := range handlers {
		sub, err := s.nc.Subscribe(subject, handler)
		if err != nil {
			s.Close()
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return s.nc.Flush()
}

// Close drops the rpc subscriptions. Sessions stay bound in the broker
// until their owners disconnect; Close only stops the wire.
func (s *Server) Close() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.log.Warn("failed to unsubscribe", slogx.Error(err), slog.String("subject", sub.Subject))
		}
	}
	s.subs = nil
}

func (s *Server) respond(msg *nats.Msg, v any) {
	data, err := encode(v)
	if err != nil {
		s.log.Error("failed to encode reply", slogx.Error(err), slog.String("subject", msg.Subject))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("failed to respond", slogx.Error(err), slog.String("subject", msg.Subject))
	}
}

func (s *Server) handleConnect(msg *nats.Msg) {
	conn := herald.NewConnID()
	s.conns.Set(string(conn), time.Now().UnixNano())
	s.brk.OnConnect(conn)
	s.respond(msg, connectReply{Conn: conn})
}

func (s *Server) handleDisconnect(msg *nats.Msg) {
	req, err := decode[disconnectRequest](msg.Data)
	if err != nil {
		s.log.Warn("malformed disconnect", slogx.Error(err))
		s.respond(msg, boolReply{OK: false})
		return
	}
	s.conns.Del(string(req.Conn))
	s.brk.OnDisconnect(req.Conn)
	s.respond(msg, boolReply{OK: true})
}

func (s *Server) handleCreateTopic(msg *nats.Msg) {
	req, err := decode[createTopicRequest](msg.Data)
	if err != nil {
		s.respond(msg, createTopicReply{OK: false, Error: err.Error()})
		return
	}
	if err := s.brk.CreateTopic(context.Background(), req.Caller, req.Name); err != nil {
		s.respond(msg, createTopicReply{OK: false, Error: err.Error()})
		return
	}
	s.respond(msg, createTopicReply{OK: true})
}

func (s *Server) handleLogin(msg *nats.Msg) {
	req, err := decode[loginRequest](msg.Data)
	if err != nil {
		s.log.Warn("malformed login", slogx.Error(err))
		s.respond(msg, boolReply{OK: false})
		return
	}
	if _, known := s.conns.Get(string(req.Conn)); !known {
		s.log.Warn("login over unknown connection", slog.String("conn", string(req.Conn)))
		s.respond(msg, boolReply{OK: false})
		return
	}
	notify := &remoteNotifier{nc: s.nc, subject: NotifySubject(req.Conn)}
	ok := s.brk.Login(context.Background(), req.User, req.Conn, notify)
	s.respond(msg, boolReply{OK: ok})
}

func (s *Server) handleListTopics(msg *nats.Msg) {
	topics := s.brk.ListTopics(context.Background())
	s.respond(msg, listTopicsReply{Topics: topics})
}

func (s *Server) handlePublish(msg *nats.Msg) {
	req, err := decode[publishRequest](msg.Data)
	if err != nil {
		s.log.Warn("malformed publish", slogx.Error(err))
		s.respond(msg, boolReply{OK: false})
		return
	}
	ok := s.brk.Publish(context.Background(), req.Author, req.Topic, req.Data)
	s.respond(msg, boolReply{OK: ok})
}

func (s *Server) handleSubscribe(msg *nats.Msg) {
	req, err := decode[subscriptionRequest](msg.Data)
	if err != nil {
		s.log.Warn("malformed subscribe", slogx.Error(err))
		s.respond(msg, boolReply{OK: false})
		return
	}
	ok := s.brk.SubscribeTo(context.Background(), req.User, req.Topic)
	s.respond(msg, boolReply{OK: ok})
}

func (s *Server) handleUnsubscribe(msg *nats.Msg) {
	req, err := decode[subscriptionRequest](msg.Data)
	if err != nil {
		s.log.Warn("malformed unsubscribe", slogx.Error(err))
		s.respond(msg, boolReply{OK: false})
		return
	}
	ok := s.brk.UnsubscribeTo(context.Background(), req.User, req.Topic)
	s.respond(msg, boolReply{OK: ok})
}

// remoteNotifier publishes a batch to the connection's notify subject.
// A dead or slow remote peer surfaces as a publish error, which the
// dispatcher logs and discards.
type remoteNotifier struct {
	nc      *nats.Conn
	subject string
}

func (n *remoteNotifier) Notify(_ context.Context, batch []herald.Content) error {
	data, err := encode(notifyBatch{Batch: batch})
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, data)
}

var _ herald.Notifier = (*remoteNotifier)(nil)
