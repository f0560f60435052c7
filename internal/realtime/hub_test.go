package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larscolombia/kapa/internal/models"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	closed bool
}

func (f *fakeConn) Write(_ context.Context, _ websocket.MessageType, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.msgs = append(f.msgs, p)
	return nil
}

func (f *fakeConn) Close(websocket.StatusCode, string) error {
	f.closed = true
	return nil
}

func TestPublishReachesProjectSubscribers(t *testing.T) {
	h := NewHub()
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Subscribe("p1", a)
	h.Subscribe("p1", b)
	h.Subscribe("p2", other)

	h.Publish(ReportEvent(EventClosed, &models.IlvReport{ID: "r1", ProjectID: "p1", Number: "HID-000001", Estado: models.EstadoCerrado}))

	require.Len(t, a.msgs, 1)
	require.Len(t, b.msgs, 1)
	assert.Empty(t, other.msgs)

	var ev Event
	require.NoError(t, json.Unmarshal(a.msgs[0], &ev))
	assert.Equal(t, EventClosed, ev.Type)
	assert.Equal(t, "r1", ev.ReportID)
	assert.Equal(t, "cerrado", ev.Estado)
	assert.False(t, ev.At.IsZero())
}

func TestPublishDropsBrokenClients(t *testing.T) {
	h := NewHub()
	bad := &fakeConn{fail: true}
	h.Subscribe("p1", bad)

	h.Publish(Event{Type: EventCreated, ProjectID: "p1"})
	assert.True(t, bad.closed)
	assert.Equal(t, 0, h.Subscribers("p1"))
}

func TestUnsubscribe(t *testing.T) {
	h := NewHub()
	c := &fakeConn{}
	h.Subscribe("p1", c)
	h.Unsubscribe("p1", c)
	h.Publish(Event{Type: EventCreated, ProjectID: "p1"})
	assert.Empty(t, c.msgs)
}
