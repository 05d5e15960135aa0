// internal/wallbox/wallbox_test.go
package wallbox

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/surplus-charger/internal/broker"
	"github.com/tamzrod/surplus-charger/internal/charger"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload interface{}
}

type fakeBroker struct {
	failTopic string
	sent      []published
	handlers  map[string]mqtt.MessageHandler
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if topic == b.failTopic {
		return &fakeToken{done: false}
	}
	b.sent = append(b.sent, published{topic, payload})
	return &fakeToken{done: true}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	if b.handlers == nil {
		b.handlers = map[string]mqtt.MessageHandler{}
	}
	b.handlers[topic] = cb
	return &fakeToken{done: true}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestClient(t *testing.T, b *fakeBroker) *MQTT {
	t.Helper()
	w, err := New(Config{Serial: "254959", Timeout: time.Second}, b, nil)
	require.NoError(t, err)
	return w
}

func TestCache_Apply(t *testing.T) {
	c := NewCache()
	at := time.Unix(100, 0)

	_, ok := c.Status()
	assert.False(t, ok, "empty cache must not be usable")

	require.NoError(t, c.Apply("car", []byte("2"), at))
	require.NoError(t, c.Apply("amp", []byte("10"), at))
	require.NoError(t, c.Apply("frc", []byte("0"), at))
	require.NoError(t, c.Apply("cus", []byte("true"), at))
	require.NoError(t, c.Apply("dwo", []byte("null"), at))
	require.NoError(t, c.Apply("modelStatus", []byte(`"15"`), at))

	_, ok = c.Status()
	assert.False(t, ok, "power array still missing")

	// U L1-3,N; I L1-3; P L1-3,N,Total; pf L1-3,N
	nrg := `[231,230,232,0,10.1,10.0,10.2,2333,2300,2350,0,6983,99,99,99,0]`
	require.NoError(t, c.Apply("nrg", []byte(nrg), at))

	st, ok := c.Status()
	require.True(t, ok)
	assert.Equal(t, charger.CarCharging, st.CarState)
	assert.Equal(t, 10.0, st.Amp)
	assert.Equal(t, 1.0, st.CableLock)
	assert.Equal(t, 0.0, st.ChargeLimit)
	assert.Equal(t, 15.0, st.ModelStatus)
	assert.Equal(t, 6983.0, st.PowerW)
	assert.Equal(t, at, st.UpdatedAt)
}

func TestCache_ApplyReadsTotalPower(t *testing.T) {
	c := NewCache()
	at := time.Unix(100, 0)

	require.NoError(t, c.Apply("car", []byte("2"), at))
	// neighbours of the total differ so an index slip shows
	nrg := `[230,231,229,1,6,6,6,1380,1386,1374,11,4140,97,98,96,12]`
	require.NoError(t, c.Apply("nrg", []byte(nrg), at))

	st, ok := c.Status()
	require.True(t, ok)
	assert.Equal(t, 4140.0, st.PowerW)
}

func TestCache_ApplyRejects(t *testing.T) {
	c := NewCache()

	assert.Error(t, c.Apply("nrg", []byte(`[1,2,3]`), time.Now()))
	assert.Error(t, c.Apply("nrg", []byte(`not json`), time.Now()))
	assert.Error(t, c.Apply("amp", []byte(`abc`), time.Now()))
	assert.NoError(t, c.Apply("unknown_key", []byte(`whatever`), time.Now()))
}

func TestStatusFields(t *testing.T) {
	f := Status{CarState: charger.CarIdle, Amp: 8, PowerW: 120}.Fields()
	assert.Equal(t, 1.0, f["carState"])
	assert.Equal(t, 8.0, f["ampere"])
	assert.Equal(t, 120.0, f["currentEnergy"])
}

func TestSubscribe_FeedsCache(t *testing.T) {
	b := &fakeBroker{}
	w := newTestClient(t, b)

	require.NoError(t, w.Subscribe(context.Background(), b))
	require.Len(t, b.handlers, len(Keys))

	b.handlers["go-eCharger/254959/car"](nil, fakeMessage{"go-eCharger/254959/car", []byte("1")})
	nrg := []byte(`[230,0,0,0,2,0,0,450,0,0,0,450,98,0,0,0]`)
	b.handlers["go-eCharger/254959/nrg"](nil, fakeMessage{"go-eCharger/254959/nrg", nrg})

	st, ok := w.Status()
	require.True(t, ok)
	assert.Equal(t, charger.CarIdle, st.CarState)
	assert.Equal(t, 450.0, st.PowerW)
}

func TestSendCommand(t *testing.T) {
	b := &fakeBroker{}
	w := newTestClient(t, b)

	err := w.SendCommand(context.Background(), charger.Command{Amps: 14, Force: charger.ForceNeutral, Phase: charger.PhaseSingle})
	require.NoError(t, err)

	assert.Equal(t, []published{
		{"go-eCharger/254959/amp/set", "14"},
		{"go-eCharger/254959/frc/set", "0"},
		{"go-eCharger/254959/psm/set", "1"},
	}, b.sent)
}

func TestSendCommand_DeliveryError(t *testing.T) {
	b := &fakeBroker{failTopic: "go-eCharger/254959/frc/set"}
	w := newTestClient(t, b)

	err := w.SendCommand(context.Background(), charger.Command{Amps: 8, Force: charger.ForceOff})

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "go-eCharger/254959/frc/set", de.Topic)
	assert.True(t, errors.Is(err, broker.ErrTimeout))
	assert.Len(t, b.sent, 1, "psm must not be sent after a failure")
}

func TestNew_RequiresSerial(t *testing.T) {
	_, err := New(Config{}, &fakeBroker{}, nil)
	assert.Error(t, err)
}
