package hrsync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellsync/internal/broker"
	"sellsync/internal/hrsync/dedupe"
	"sellsync/internal/hrsync/models"
	"sellsync/internal/hrsync/store"
)

const testTopic = "rh_event.sells"
const testDLQTopic = "rh_event.sells.dlq"

type listenerFixture struct {
	broker   *broker.MemoryBroker
	store    *store.MemoryStore
	listener *Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func startListener(t *testing.T, opts ...ListenerOption) *listenerFixture {
	t.Helper()

	st := store.NewMemory()
	st.SeedEnterprise(models.Enterprise{ID: 1, Name: "Acme"})
	st.SeedRole(models.Role{ID: 1, Name: models.RoleManager, Hierarchy: models.DefaultHierarchy(models.RoleManager), EnterpriseID: 1})
	st.SeedScope(models.Scope{ID: 1, Name: models.ScopeSells, EnterpriseID: 1})

	retrier, err := NewRetrier(st, WithAttempts(2), WithBackoff(time.Millisecond))
	require.NoError(t, err)
	engine, err := NewEngine(retrier, models.ScopeSells)
	require.NoError(t, err)

	mb := broker.NewMemory(testTopic, 16)
	opts = append([]ListenerOption{WithDeadLetter(mb, testDLQTopic)}, opts...)
	listener, err := NewListener(mb, NewScopeFilter(models.ScopeSells, nil), engine, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = listener.Run(ctx)
	}()

	f := &listenerFixture{broker: mb, store: st, listener: listener, cancel: cancel, done: done}
	t.Cleanup(f.stop)
	return f
}

func (f *listenerFixture) stop() {
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
	}
}

func (f *listenerFixture) publish(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, f.broker.Publish(context.Background(), testTopic, nil, []byte(body)))
}

func (f *listenerFixture) waitAcked(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.broker.Acked()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d acknowledged messages, got %d", n, len(f.broker.Acked()))
}

func (f *listenerFixture) userExists(id int64) bool {
	session, err := f.store.Begin(context.Background())
	if err != nil {
		return false
	}
	defer session.Close()
	_, err = session.GetUser(context.Background(), id)
	return err == nil
}

func deleteMessage(id int64) string {
	return fmt.Sprintf(
		`{"event":"USER_DELETED","event_scope":"Sells","data":{"id":%d,"enterprise_id":1},"origin":"rh","start_date":%q}`,
		id, time.Now().UTC().Format(time.RFC3339))
}

func TestListener_DeletesExistingUserAndAcks(t *testing.T) {
	f := startListener(t)
	f.store.SeedUser(models.User{ID: 42, Username: "bob", Email: "bob@acme.test", ScopeID: 1, EnterpriseID: 1})

	f.publish(t, deleteMessage(42))
	f.waitAcked(t, 1)

	assert.False(t, f.userExists(42))
	stats := f.listener.Status()
	assert.Equal(t, uint64(1), stats.Consumed)
	assert.Equal(t, uint64(1), stats.Applied)
	assert.Equal(t, string(EventUserDeleted), stats.LastEventKind)
}

func TestListener_DeleteForMissingUserIsLoggedNoOp(t *testing.T) {
	f := startListener(t)

	f.publish(t, deleteMessage(42))
	f.waitAcked(t, 1)

	stats := f.listener.Status()
	assert.Equal(t, uint64(1), stats.Applied)
	assert.Zero(t, stats.Failed)
}

func TestListener_MalformedMessagesDoNotCrashTheLoop(t *testing.T) {
	f := startListener(t)
	f.store.SeedUser(models.User{ID: 42, Username: "bob", Email: "bob@acme.test", ScopeID: 1, EnterpriseID: 1})

	f.publish(t, `this is not json`)
	f.publish(t, `{"event":"USER_DELETED"}`)
	f.publish(t, deleteMessage(42))
	f.waitAcked(t, 3)

	assert.False(t, f.userExists(42), "loop must keep processing after malformed input")
	stats := f.listener.Status()
	assert.Equal(t, uint64(3), stats.Consumed)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, uint64(1), stats.Applied)
}

func TestListener_ForeignScopeEventsLeaveStorageAlone(t *testing.T) {
	f := startListener(t)
	f.store.SeedUser(models.User{ID: 42, Username: "bob", Email: "bob@acme.test", ScopeID: 1, EnterpriseID: 1})

	msg := `{"event":"USER_DELETED","event_scope":"HumanResource","data":{"id":42},"origin":"rh","start_date":"2024-03-02T08:30:00"}`
	f.publish(t, msg)
	f.waitAcked(t, 1)

	assert.True(t, f.userExists(42))
	assert.Equal(t, uint64(1), f.listener.Status().Dropped)
}

func TestListener_DuplicateMessagesAreAppliedOnce(t *testing.T) {
	f := startListener(t, WithDeduper(dedupe.NewMemory()))

	body := fmt.Sprintf(
		`{"event":"USER_CREATED","event_scope":"Sells","data":{"id":9,"username":"cleo","email":"cleo@acme.test","role":{"id":1,"name":"Manager","hierarchy":2},"scope":{"id":1,"name":"Sells"},"enterprise":{"id":1,"name":"Acme"}},"origin":"rh","start_date":%q}`,
		time.Now().UTC().Format(time.RFC3339))

	f.publish(t, body)
	f.publish(t, body)
	f.waitAcked(t, 2)

	assert.True(t, f.userExists(9))
	stats := f.listener.Status()
	assert.Equal(t, uint64(1), stats.Applied)
	assert.Equal(t, uint64(1), stats.Dropped, "second delivery is skipped by fingerprint")
}

// brokenStore fails every session so the engine exhausts its retries.
type brokenStore struct{}

func (brokenStore) Begin(context.Context) (store.Session, error) {
	return nil, fmt.Errorf("storage is down")
}

func TestListener_ExhaustedRetriesAreAckedAndDeadLettered(t *testing.T) {
	retrier, err := NewRetrier(brokenStore{}, WithAttempts(2), WithBackoff(time.Millisecond))
	require.NoError(t, err)
	engine, err := NewEngine(retrier, models.ScopeSells)
	require.NoError(t, err)

	mb := broker.NewMemory(testTopic, 16)
	listener, err := NewListener(mb, NewScopeFilter(models.ScopeSells, nil), engine,
		WithDeadLetter(mb, testDLQTopic))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = listener.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	body := deleteMessage(42)
	require.NoError(t, mb.Publish(ctx, testTopic, nil, []byte(body)))
	// A second message proves the loop survived the fatal error.
	require.NoError(t, mb.Publish(ctx, testTopic, nil, []byte(deleteMessage(43))))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && len(mb.Acked()) < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, mb.Acked(), 2, "messages are acknowledged even after fatal errors")

	assert.Equal(t, uint64(2), listener.Status().Failed)

	dead := mb.Published(testDLQTopic)
	require.Len(t, dead, 2)
	var record struct {
		ID    string `json:"id"`
		Body  string `json:"body"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(dead[0].Body, &record))
	assert.NotEmpty(t, record.ID)
	assert.JSONEq(t, body, record.Body)
	assert.Contains(t, record.Error, "after 2 attempts")
}
