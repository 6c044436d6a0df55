/*
Package herald defines the public contract of a topic-based
publish/subscribe broker: publishers push content items to named
topics, subscribers register interest in topics and receive
asynchronous notification batches, including a replay of the topic's
prior content (the backlog) on subscription and on reconnection.

The package is intentionally small: it holds the identifier types, the
immutable Content model, the Notifier callback contract and the Broker
interface. The broker engine lives in the service package; the NATS
request/reply transport that carries the operations and callbacks
across the wire lives in transport/natsrpc.

Key concepts:

  - Topics are created once by a fixed administrator identity and are
    never removed. A topic must exist before it accepts publishes,
    subscriptions or unsubscriptions.
  - Every topic owns an append-only log of Content in publish order.
    The log never shrinks or reorders.
  - A user holds at most one live session (connection + Notifier) at a
    time. Subscriptions survive disconnects: logging back in resumes
    deliveries and replays each subscribed topic's full backlog.
  - Delivery is fire-and-forget. A failing or slow Notifier never
    stalls a publisher, and a lost notification is simply lost; the
    backlog replay on re-subscribe or re-login is the only recovery.

Example usage:

	brk := service.New(service.WithAdmin("admin"))
	defer brk.Close()

	_ = brk.CreateTopic(ctx, "admin", "sports")

	conn := herald.NewConnID()
	brk.OnConnect(conn)
	brk.Login(ctx, "alice", conn, herald.NotifierFunc(
		func(ctx context.Context, batch []herald.Content) error {
			for _, c := range batch {
				fmt.Println(c.Topic, c.Author, c.Data)
			}
			return nil
		},
	))
	brk.SubscribeTo(ctx, "alice", "sports")
	brk.Publish(ctx, "bob", "sports", "goal!")
*/
package herald
