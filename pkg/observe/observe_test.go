package observe

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/transport"
)

var (
	batteryPath = model.ResourcePath(3, 0, 9)
	t0          = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// fakeReader serves values from a map keyed by path string.
type fakeReader struct {
	values map[string]any
	err    error
}

func (r *fakeReader) set(p model.Path, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.values[p.String()] = v
}

func (r *fakeReader) Read(p model.Path) ([]model.Value, error) {
	if r.err != nil {
		return nil, r.err
	}
	v, ok := r.values[p.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, p)
	}
	return []model.Value{{Path: p, Type: model.DataTypeInteger, Value: v}}, nil
}

// recorder collects notifications and can simulate back-pressure.
type recorder struct {
	sent []Notification
	busy bool
}

func (r *recorder) SendNotification(n Notification) error {
	if r.busy {
		return transport.ErrBusy
	}
	r.sent = append(r.sent, n)
	return nil
}

func observeBattery(t *testing.T, m *Manager, reader *fakeReader, pmin, pmax time.Duration) {
	t.Helper()
	current, err := reader.Read(batteryPath)
	require.NoError(t, err)
	require.NoError(t, m.Observe(batteryPath, message.Token{0xAA}, pmin, pmax, current, t0))
}

func TestMinPeriodDelaysChange(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 5*time.Second, 60*time.Second)
	rec := &recorder{}

	reader.set(batteryPath, int64(89))
	require.NoError(t, m.Tick(t0.Add(1*time.Second), reader, rec))
	assert.Empty(t, rec.sent, "change before pmin must wait")

	reader.set(batteryPath, int64(88))
	require.NoError(t, m.Tick(t0.Add(4*time.Second), reader, rec))
	assert.Empty(t, rec.sent)

	require.NoError(t, m.Tick(t0.Add(5*time.Second), reader, rec))
	require.Len(t, rec.sent, 1)
	n := rec.sent[0]
	assert.False(t, n.KeepAlive)
	assert.Equal(t, uint32(1), n.Seq)
	assert.Equal(t, message.Token{0xAA}, n.Token)
	assert.Equal(t, int64(88), n.Values[0].Value, "latest value is sent")

	reg, ok := m.Get(batteryPath)
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Second), reg.LastNotified())
	assert.Equal(t, uint32(1), reg.Seq())
}

func TestMaxPeriodKeepAlive(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 5*time.Second, 60*time.Second)
	rec := &recorder{}

	require.NoError(t, m.Tick(t0.Add(59*time.Second), reader, rec))
	assert.Empty(t, rec.sent)

	require.NoError(t, m.Tick(t0.Add(60*time.Second), reader, rec))
	require.Len(t, rec.sent, 1)
	assert.True(t, rec.sent[0].KeepAlive)

	// The keep-alive restarts both periods.
	require.NoError(t, m.Tick(t0.Add(65*time.Second), reader, rec))
	assert.Len(t, rec.sent, 1)
	require.NoError(t, m.Tick(t0.Add(120*time.Second), reader, rec))
	require.Len(t, rec.sent, 2)
	assert.Equal(t, uint32(2), rec.sent[1].Seq)
}

func TestZeroMaxPeriodDisablesKeepAlive(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, 0)
	rec := &recorder{}

	require.NoError(t, m.Tick(t0.Add(time.Hour), reader, rec))
	assert.Empty(t, rec.sent)

	reader.set(batteryPath, int64(10))
	require.NoError(t, m.Tick(t0.Add(time.Hour), reader, rec))
	assert.Len(t, rec.sent, 1)
}

func TestBusySenderRetriesNextTick(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, 60*time.Second)
	rec := &recorder{busy: true}

	reader.set(batteryPath, int64(50))
	require.NoError(t, m.Tick(t0.Add(time.Second), reader, rec), "back-pressure is not an error")
	assert.Empty(t, rec.sent)

	reg, _ := m.Get(batteryPath)
	assert.Equal(t, uint32(0), reg.Seq(), "skipped notification does not consume a sequence number")

	rec.busy = false
	require.NoError(t, m.Tick(t0.Add(2*time.Second), reader, rec))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, uint32(1), rec.sent[0].Seq)
}

func TestSenderErrorIsReturned(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, 60*time.Second)

	broken := errors.New("link down")
	reader.set(batteryPath, int64(1))
	err := m.Tick(t0.Add(time.Second), reader, SenderFunc(func(Notification) error { return broken }))
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, 1, m.Count())
}

func TestConfirmableInFlight(t *testing.T) {
	m := NewManagerWithConfig(Config{Confirmable: true})
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, 60*time.Second)
	rec := &recorder{}

	reader.set(batteryPath, int64(80))
	require.NoError(t, m.Tick(t0.Add(time.Second), reader, rec))
	require.Len(t, rec.sent, 1)
	assert.True(t, rec.sent[0].Confirmable)

	reg, _ := m.Get(batteryPath)
	assert.True(t, reg.InFlight())

	reader.set(batteryPath, int64(70))
	require.NoError(t, m.Tick(t0.Add(2*time.Second), reader, rec))
	assert.Len(t, rec.sent, 1, "one notification in flight per registration")

	assert.False(t, m.Acknowledge(message.Token{0xBB}))
	assert.True(t, m.Acknowledge(message.Token{0xAA}))
	assert.False(t, m.Acknowledge(message.Token{0xAA}), "already acknowledged")

	require.NoError(t, m.Tick(t0.Add(3*time.Second), reader, rec))
	require.Len(t, rec.sent, 2)
	assert.Equal(t, int64(70), rec.sent[1].Values[0].Value)
}

func TestCancelToken(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, 0)

	assert.False(t, m.CancelToken(message.Token{0x01}))
	assert.True(t, m.CancelToken(message.Token{0xAA}))
	assert.Equal(t, 0, m.Count())
	assert.False(t, m.Cancel(batteryPath))
}

func TestRemovedPathDropsRegistrations(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	other := model.ResourcePath(1, 0, 1)
	reader.set(batteryPath, int64(90))
	reader.set(other, int64(300))
	require.NoError(t, m.Observe(batteryPath, message.Token{0x01}, 0, 0, nil, t0))
	require.NoError(t, m.Observe(other, message.Token{0x02}, 0, 0, nil, t0))

	m.RemovePath(model.InstancePath(3, 0))
	_, ok := m.Get(batteryPath)
	assert.False(t, ok)
	_, ok = m.Get(other)
	assert.True(t, ok)
}

func TestVanishedPathDroppedOnTick(t *testing.T) {
	m := NewManager()
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, time.Second)

	delete(reader.values, batteryPath.String())
	require.NoError(t, m.Tick(t0.Add(time.Minute), reader, &recorder{}))
	assert.Equal(t, 0, m.Count())
}

func TestObserveReplacesExisting(t *testing.T) {
	m := NewManagerWithConfig(Config{MaxObservations: 1})
	require.NoError(t, m.Observe(batteryPath, message.Token{0x01}, time.Second, time.Minute, nil, t0))
	require.NoError(t, m.Observe(batteryPath, message.Token{0x02}, 2*time.Second, 2*time.Minute, nil, t0))

	reg, ok := m.Get(batteryPath)
	require.True(t, ok)
	assert.Equal(t, message.Token{0x02}, reg.Token)
	assert.Equal(t, 2*time.Second, reg.MinPeriod)

	err := m.Observe(model.ResourcePath(3, 0, 0), message.Token{0x03}, 0, 0, nil, t0)
	assert.ErrorIs(t, err, ErrTooManyObservations)
}

func TestObserveRejectsBadInput(t *testing.T) {
	m := NewManager()
	assert.ErrorIs(t, m.Observe(batteryPath, message.Token{0x01}, 10*time.Second, 5*time.Second, nil, t0), ErrInvalidPeriod)
	assert.ErrorIs(t, m.Observe(batteryPath, message.Token{0x01}, -time.Second, 0, nil, t0), ErrInvalidPeriod)
	assert.Error(t, m.Observe(batteryPath, nil, 0, 0, nil, t0))
	assert.Equal(t, 0, m.Count())
}

func TestClearAll(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Observe(batteryPath, message.Token{0x01}, 0, 0, nil, t0))
	m.ClearAll()
	assert.Equal(t, 0, m.Count())
}

func TestNotificationOutcomeIgnoresReplacedRegistration(t *testing.T) {
	m := NewManagerWithConfig(Config{Confirmable: true})
	reader := &fakeReader{}
	reader.set(batteryPath, int64(90))
	observeBattery(t, m, reader, 0, 0)
	rec := &recorder{}

	reader.set(batteryPath, int64(80))
	require.NoError(t, m.Tick(t0.Add(time.Second), reader, rec))
	require.Len(t, rec.sent, 1)
	stale := rec.sent[0].ID

	// The server observes again with the same token.
	observeBattery(t, m, reader, 0, 0)
	reg, ok := m.Get(batteryPath)
	require.True(t, ok)
	assert.False(t, reg.InFlight())

	assert.False(t, m.CancelNotification(stale))
	assert.False(t, m.AcknowledgeNotification(stale))
	assert.Equal(t, 1, m.Count())

	reader.set(batteryPath, int64(70))
	require.NoError(t, m.Tick(t0.Add(2*time.Second), reader, rec))
	require.Len(t, rec.sent, 2)
	current := rec.sent[1].ID
	assert.NotEqual(t, stale, current)

	assert.True(t, m.AcknowledgeNotification(current))
	assert.True(t, m.CancelNotification(current))
	assert.Equal(t, 0, m.Count())
}
