package river

import (
	"context"
	"testing"
	"time"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func next(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestSubscribe_DeliversEventsInOrder(t *testing.T) {
	l := newLog(t, insertAt(100, 1))

	sub, err := Subscribe(context.Background(), l, FromBeginning())
	require.NoError(t, err)

	assert.Equal(t, Insert{Database: "app", Collection: "users", Document: bson.D{{Key: "_id", Value: int32(1)}}}, next(t, sub))
	assert.Equal(t, OptimeUpdate{Position: oplog.Position{T: 100}}, next(t, sub))

	require.NoError(t, l.Append(oplog.Record{
		Position:  oplog.Position{T: 101},
		Namespace: "app.$cmd",
		Op:        oplog.OpCommand,
		Object:    bson.D{{Key: "drop", Value: "users"}},
	}))

	assert.Equal(t, DeleteCollection{Database: "app", Collection: "users"}, next(t, sub))
	assert.Equal(t, OptimeUpdate{Position: oplog.Position{T: 101}}, next(t, sub))

	assert.Nil(t, sub.Err())
	require.NoError(t, sub.Close())

	_, ok := <-sub.Events()
	assert.False(t, ok)
	<-sub.Done()
	assert.NoError(t, sub.Err())
}

func TestSubscribe_CloseWhileBlockedOnDelivery(t *testing.T) {
	recs := make([]oplog.Record, 0, subscriptionBuffer)
	for i := 1; i <= subscriptionBuffer; i++ {
		recs = append(recs, insertAt(uint32(i), int32(i)))
	}
	l := newLog(t, recs...)

	sub, err := Subscribe(context.Background(), l, FromBeginning())
	require.NoError(t, err)

	// nobody reads; the buffer fills and the sink blocks
	assert.Eventually(t, func() bool { return len(sub.events) == subscriptionBuffer }, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- sub.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a full subscription")
	}
}

func TestSubscribe_LimitEndsSubscription(t *testing.T) {
	l := newLog(t, insertAt(1, 1), insertAt(2, 2))

	sub, err := Subscribe(context.Background(), l, FromBeginning(), WithLimit(1))
	require.NoError(t, err)

	var got []Event
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	assert.Len(t, got, 2)
	assert.NoError(t, sub.Err())
	assert.NotNil(t, sub.Stream())
}

func TestSubscribe_ParentCancelIsReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := Subscribe(ctx, newLog(t), FromBeginning())
	require.NoError(t, err)

	cancel()
	<-sub.Done()
	assert.ErrorIs(t, sub.Err(), context.Canceled)
}
