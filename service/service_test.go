package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/herald-mq/herald"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures every batch delivered to it.
type recordingNotifier struct {
	mu      sync.Mutex
	batches [][]herald.Content
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{}
}

func (r *recordingNotifier) Notify(_ context.Context, batch []herald.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]herald.Content, len(batch))
	copy(cp, batch)
	r.batches = append(r.batches, cp)
	return nil
}

func (r *recordingNotifier) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recordingNotifier) batch(i int) []herald.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[i]
}

// flat returns every delivered content in delivery order.
func (r *recordingNotifier) flat() []herald.Content {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []herald.Content
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func newTestService(t *testing.T, options ...Option) *Service {
	t.Helper()
	svc := New(options...)
	t.Cleanup(svc.Close)
	return svc
}

// loginAs connects and logs a user in, returning the connection handle.
func loginAs(t *testing.T, svc *Service, user herald.UserID, n herald.Notifier) herald.ConnID {
	t.Helper()
	conn := herald.NewConnID()
	svc.OnConnect(conn)
	require.True(t, svc.Login(context.Background(), user, conn, n))
	return conn
}

func waitBatches(t *testing.T, r *recordingNotifier, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.batchCount() >= n },
		2*time.Second, 5*time.Millisecond, "expected %d batches, got %d", n, r.batchCount())
}

func payloads(batch []herald.Content) []string {
	out := make([]string, 0, len(batch))
	for _, c := range batch {
		out = append(out, c.Data)
	}
	return out
}

func TestCreateTopic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("rejects non-admin callers", func(t *testing.T) {
		err := svc.CreateTopic(ctx, "mallory", "sports")
		assert.ErrorIs(t, err, herald.ErrNotAuthorized)
		assert.Empty(t, svc.ListTopics(ctx))
	})

	t.Run("admin creates a topic once", func(t *testing.T) {
		require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
		assert.ErrorIs(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"), herald.ErrTopicExists)
		assert.Equal(t, []herald.Topic{"sports"}, svc.ListTopics(ctx))
	})

	t.Run("custom admin identity", func(t *testing.T) {
		custom := newTestService(t, WithAdmin("root"))
		assert.ErrorIs(t, custom.CreateTopic(ctx, "admin", "news"), herald.ErrNotAuthorized)
		assert.NoError(t, custom.CreateTopic(ctx, "root", "news"))
	})
}

func TestListTopicsCreationOrder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, name := range []herald.Topic{"zeta", "alpha", "mid"} {
		require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, name))
	}
	assert.Equal(t, []herald.Topic{"zeta", "alpha", "mid"}, svc.ListTopics(ctx))
}

func TestUnknownTopicValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.Publish(ctx, "bob", "ghost", "hi"))
	assert.False(t, svc.SubscribeTo(ctx, "alice", "ghost"))
	assert.False(t, svc.UnsubscribeTo(ctx, "alice", "ghost"))

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "ghost"))

	assert.True(t, svc.Publish(ctx, "bob", "ghost", "hi"))
	assert.True(t, svc.SubscribeTo(ctx, "alice", "ghost"))
	assert.True(t, svc.UnsubscribeTo(ctx, "alice", "ghost"))
}

func TestUnsubscribeWithoutSubscription(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	// validation symmetry with SubscribeTo: the topic exists, so this
	// succeeds even though the user never subscribed
	assert.True(t, svc.UnsubscribeTo(ctx, "alice", "sports"))
}

func TestSingleSessionPerUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := newRecordingNotifier()
	conn := loginAs(t, svc, "alice", first)

	second := newRecordingNotifier()
	conn2 := herald.NewConnID()
	svc.OnConnect(conn2)
	assert.False(t, svc.Login(ctx, "alice", conn2, second), "second login must fail while a session is live")

	// the original session still receives deliveries
	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))
	require.True(t, svc.Publish(ctx, "bob", "sports", "goal!"))
	waitBatches(t, first, 1)
	assert.Zero(t, second.batchCount())

	svc.OnDisconnect(conn)
	assert.True(t, svc.Login(ctx, "alice", conn2, second), "login succeeds again after disconnect")
}

func TestBacklogOnSubscribe(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "weather"))

	const n = 5
	for i := 0; i < n; i++ {
		require.True(t, svc.Publish(ctx, "bob", "sports", fmt.Sprintf("update-%d", i)))
		// concurrent noise on another topic must not leak into the backlog
		require.True(t, svc.Publish(ctx, "carol", "weather", "rain"))
	}

	rec := newRecordingNotifier()
	loginAs(t, svc, "alice", rec)
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))

	waitBatches(t, rec, 1)
	batch := rec.batch(0)
	require.Len(t, batch, n, "backlog holds exactly the prior publishes")
	for i, c := range batch {
		assert.Equal(t, herald.UserID("bob"), c.Author)
		assert.Equal(t, herald.Topic("sports"), c.Topic)
		assert.Equal(t, fmt.Sprintf("update-%d", i), c.Data, "publish order preserved")
	}
}

func TestEmptyBacklogIsSkipped(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	rec := newRecordingNotifier()
	loginAs(t, svc, "alice", rec)
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))

	// a later publish is still the first delivery alice sees
	require.True(t, svc.Publish(ctx, "bob", "sports", "goal!"))
	waitBatches(t, rec, 1)
	assert.Equal(t, []string{"goal!"}, payloads(rec.batch(0)))
}

func TestFanOut(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))

	const subscribers = 5
	recs := make([]*recordingNotifier, subscribers)
	for i := range recs {
		recs[i] = newRecordingNotifier()
		user := herald.UserID(fmt.Sprintf("user-%d", i))
		loginAs(t, svc, user, recs[i])
		require.True(t, svc.SubscribeTo(ctx, user, "sports"))
	}
	bystander := newRecordingNotifier()
	loginAs(t, svc, "bystander", bystander)

	require.True(t, svc.Publish(ctx, "bob", "sports", "goal!"))

	for _, rec := range recs {
		waitBatches(t, rec, 1)
		require.Len(t, rec.batch(0), 1)
		assert.Equal(t, "goal!", rec.batch(0)[0].Data)
	}
	assert.Zero(t, bystander.batchCount(), "unsubscribed users receive nothing")
}

func TestDuplicateSubscribeDeliversOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	rec := newRecordingNotifier()
	loginAs(t, svc, "alice", rec)

	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))

	require.True(t, svc.Publish(ctx, "bob", "sports", "goal!"))
	waitBatches(t, rec, 1)

	// give a hypothetical duplicate delivery time to show up
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.flat(), 1, "one publish reaches a double subscriber exactly once")
}

func TestLoggedOutSubscriberReceivesNothing(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	rec := newRecordingNotifier()
	conn := loginAs(t, svc, "alice", rec)
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))

	svc.OnDisconnect(conn)
	require.True(t, svc.Publish(ctx, "bob", "sports", "goal!"))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.batchCount())
}

func TestLoginReplaysRetainedSubscriptions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "weather"))

	rec := newRecordingNotifier()
	conn := loginAs(t, svc, "alice", rec)
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))
	require.True(t, svc.SubscribeTo(ctx, "alice", "weather"))
	svc.OnDisconnect(conn)

	// published while alice is away
	require.True(t, svc.Publish(ctx, "bob", "sports", "goal!"))
	require.True(t, svc.Publish(ctx, "carol", "weather", "rain"))

	fresh := newRecordingNotifier()
	loginAs(t, svc, "alice", fresh)

	// one backlog batch per subscribed topic; no ordering between the
	// two replay dispatches
	waitBatches(t, fresh, 2)
	got := [][]string{payloads(fresh.batch(0)), payloads(fresh.batch(1))}
	assert.ElementsMatch(t, [][]string{{"goal!"}, {"rain"}}, got)
}

func TestDisconnectBeforeLoginIsNoop(t *testing.T) {
	svc := newTestService(t)

	conn := herald.NewConnID()
	svc.OnConnect(conn)
	svc.OnDisconnect(conn)
	// unknown handle as well
	svc.OnDisconnect(herald.NewConnID())
}

func TestEndToEndScenario(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))

	a := newRecordingNotifier()
	loginAs(t, svc, "A", a)
	require.True(t, svc.SubscribeTo(ctx, "A", "sports"), "empty backlog subscribe")

	require.True(t, svc.Publish(ctx, "B", "sports", "goal!"))
	waitBatches(t, a, 1)
	require.Len(t, a.batch(0), 1)
	assert.Equal(t, herald.UserID("B"), a.batch(0)[0].Author)
	assert.Equal(t, "goal!", a.batch(0)[0].Data)

	require.True(t, svc.UnsubscribeTo(ctx, "A", "sports"))
	require.True(t, svc.Publish(ctx, "B", "sports", "second"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, a.batchCount(), "nothing delivered after unsubscribe")

	require.True(t, svc.SubscribeTo(ctx, "A", "sports"))
	waitBatches(t, a, 2)
	assert.Equal(t, []string{"goal!", "second"}, payloads(a.batch(1)), "full backlog in publish order")
}

func TestConcurrentPublishers(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateTopic(ctx, DefaultAdmin, "sports"))
	rec := newRecordingNotifier()
	loginAs(t, svc, "alice", rec)
	require.True(t, svc.SubscribeTo(ctx, "alice", "sports"))

	const publishers = 8
	const perPublisher = 25
	var wg sync.WaitGroup
	wg.Add(publishers)
	for p := 0; p < publishers; p++ {
		go func(p int) {
			defer wg.Done()
			author := herald.UserID(fmt.Sprintf("pub-%d", p))
			for i := 0; i < perPublisher; i++ {
				assert.True(t, svc.Publish(ctx, author, "sports", fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(rec.flat()) == publishers*perPublisher
	}, 2*time.Second, 10*time.Millisecond)

	// the log holds every publish exactly once
	fresh := newRecordingNotifier()
	loginAs(t, svc, "checker", fresh)
	require.True(t, svc.SubscribeTo(ctx, "checker", "sports"))
	waitBatches(t, fresh, 1)
	assert.Len(t, fresh.batch(0), publishers*perPublisher)
}
