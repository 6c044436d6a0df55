package natsrpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fogfish/opts"
	"github.com/herald-mq/herald"
	"github.com/herald-mq/herald/pkg/slogx"
	"github.com/nats-io/nats.go"
)

const defaultRequestTimeout = 5 * time.Second

// ClientOption configures a Client.
type ClientOption = opts.Option[Client]

var (
	// WithRequestTimeout bounds each rpc round trip.
	WithRequestTimeout = opts.ForName[Client, time.Duration]("timeout")
	// WithClientLogger sets the logger used by the client.
	WithClientLogger = opts.ForName[Client, *slog.Logger]("log")
)

// Client is the remote stub for the broker operations. One Client owns
// one logical connection: Dial obtains the handle, Login binds it to a
// user and starts notification delivery, Close gives it back.
type Client struct {
	nc      *nats.Conn
	timeout time.Duration
	log     *slog.Logger

	conn   herald.ConnID
	notify *nats.Subscription
}

// Dial performs the connect handshake and returns a client holding a
// fresh connection handle.
func Dial(nc *nats.Conn, options ...ClientOption) (*Client, error) {
	c := &Client{
		nc:      nc,
		timeout: defaultRequestTimeout,
		log:     slog.Default(),
	}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	c.log = c.log.With(slogx.LoggerName("natsrpc.client"))

	msg, err := nc.Request(SubjectConnect, nil, c.timeout)
	if err != nil {
		return nil, err
	}
	reply, err := decode[connectReply](msg.Data)
	if err != nil {
		return nil, err
	}
	c.conn = reply.Conn
	return c, nil
}

// ConnID returns the handle assigned by the server.
func (c *Client) ConnID() herald.ConnID {
	return c.conn
}

// Close tears the connection down: it announces the disconnect so the
// server releases the session, then stops notification delivery.
func (c *Client) Close() error {
	data, err := encode(disconnectRequest{Conn: c.conn})
	if err != nil {
		return err
	}
	if _, err := c.nc.Request(SubjectDisconnect, data, c.timeout); err != nil {
		return err
	}
	if c.notify != nil {
		if err := c.notify.Unsubscribe(); err != nil {
			return err
		}
		c.notify = nil
	}
	return nil
}

// Login registers the notifier for this connection and binds the user
// to it. The notify subject is subscribed before the login request so
// the backlog replay triggered by a successful login is not missed.
// The notifier runs on the NATS delivery goroutine; its errors are
// logged and swallowed, mirroring the server-side dispatcher contract.
func (c *Client) Login(ctx context.Context, user herald.UserID, notify herald.Notifier) (bool, error) {
	// rebind on every call so a retried login carries its own notifier
	if c.notify != nil {
		if err := c.notify.Unsubscribe(); err != nil {
			return false, err
		}
		c.notify = nil
	}
	sub, err := c.nc.Subscribe(NotifySubject(c.conn), func(msg *nats.Msg) {
		wrapped, err := decode[notifyBatch](msg.Data)
		if err != nil {
			c.log.Warn("malformed notification batch", slogx.Error(err))
			return
		}
		if err := notify.Notify(context.Background(), wrapped.Batch); err != nil {
			c.log.Warn("notifier failed", slogx.Error(err))
		}
	})
	if err != nil {
		return false, err
	}
	c.notify = sub

	reply, err := c.request(ctx, SubjectLogin, loginRequest{User: user, Conn: c.conn})
	if err != nil {
		return false, err
	}
	return reply.OK, nil
}

// CreateTopic maps the server's status reply back onto the herald
// sentinel errors so remote callers can use errors.Is.
func (c *Client) CreateTopic(ctx context.Context, caller herald.UserID, name herald.Topic) error {
	data, err := encode(createTopicRequest{Caller: caller, Name: name})
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	msg, err := c.nc.RequestWithContext(ctx, SubjectCreateTopic, data)
	if err != nil {
		return err
	}
	reply, err := decode[createTopicReply](msg.Data)
	if err != nil {
		return err
	}
	if reply.OK {
		return nil
	}
	switch reply.Error {
	case herald.ErrNotAuthorized.Error():
		return herald.ErrNotAuthorized
	case herald.ErrTopicExists.Error():
		return herald.ErrTopicExists
	default:
		return errors.New(reply.Error)
	}
}

// ListTopics returns the registered topics in creation order.
func (c *Client) ListTopics(ctx context.Context) ([]herald.Topic, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	msg, err := c.nc.RequestWithContext(ctx, SubjectListTopics, nil)
	if err != nil {
		return nil, err
	}
	reply, err := decode[listTopicsReply](msg.Data)
	if err != nil {
		return nil, err
	}
	return reply.Topics, nil
}

// Publish appends data to the topic's log.
func (c *Client) Publish(ctx context.Context, author herald.UserID, topic herald.Topic, data string) (bool, error) {
	reply, err := c.request(ctx, SubjectPublish, publishRequest{Author: author, Topic: topic, Data: data})
	if err != nil {
		return false, err
	}
	return reply.OK, nil
}

// SubscribeTo registers interest in a topic and triggers its backlog
// replay.
func (c *Client) SubscribeTo(ctx context.Context, user herald.UserID, topic herald.Topic) (bool, error) {
	reply, err := c.request(ctx, SubjectSubscribe, subscriptionRequest{User: user, Topic: topic})
	if err != nil {
		return false, err
	}
	return reply.OK, nil
}

// UnsubscribeTo removes interest in a topic.
func (c *Client) UnsubscribeTo(ctx context.Context, user herald.UserID, topic herald.Topic) (bool, error) {
	reply, err := c.request(ctx, SubjectUnsubscribe, subscriptionRequest{User: user, Topic: topic})
	if err != nil {
		return false, err
	}
	return reply.OK, nil
}

func (c *Client) request(ctx context.Context, subject string, req any) (boolReply, error) {
	data, err := encode(req)
	if err != nil {
		return boolReply{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return boolReply{}, err
	}
	return decode[boolReply](msg.Data)
}

// withTimeout applies the client's request timeout when the caller's
// context carries no deadline of its own.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
