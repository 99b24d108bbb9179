package publisher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gortlbridge/shared"
	"gortlbridge/utils"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	payload  string
	retained bool
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	publishes    []published
	subscribed   []string
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token { return fakeToken{} }
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}
func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishes = append(c.publishes, published{topic: topic, payload: payload.(string), retained: retained})
	return fakeToken{}
}
func (c *fakeClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return fakeToken{}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.publishes...)
}

type restarts struct {
	all   int
	radio []string
	known map[string]bool
}

func (r *restarts) RestartRadios() { r.all++ }
func (r *restarts) RestartRadio(key string) bool {
	r.radio = append(r.radio, key)
	return r.known[key]
}

var testTopics = Topics{Prefix: "home", Suffix: "_dev", BridgeID: "42"}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{71.0, "71"},
		{71.456, "71.46"},
		{1013.2, "1013.2"},
		{-0.001, "0"},
		{12, "12"},
		{true, "true"},
		{"open", "open"},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in), "%v", tt.in)
	}
}

func TestStatusAndBatteryPayload(t *testing.T) {
	assert.Equal(t, "Online", StatusPayload(shared.StatusEvent{State: shared.StateOnline}))
	assert.Equal(t, "Error: USB Busy", StatusPayload(shared.StatusEvent{State: shared.StateError, Reason: "Error: USB Busy"}))
	assert.Equal(t, "Error", StatusPayload(shared.StatusEvent{State: shared.StateError}))
	assert.Equal(t, "Scanning", StatusPayload(shared.StatusEvent{State: shared.StateScanning, Reason: "No recent readings"}))
	assert.Equal(t, "ON", BatteryPayload(true))
	assert.Equal(t, "OFF", BatteryPayload(false))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "home/status/rtl_bridge_dev/availability", testTopics.Availability())
	assert.Equal(t, "home/status/rtl_bridge_dev/restart/set", testTopics.Restart())
	assert.Equal(t, "home/status/rtl_bridge_dev/restart/101/set", testTopics.RestartRadio("101"))
	assert.Equal(t, "home/rtl_devices/7/temperature", testTopics.Sensor("7", "temperature"))
	assert.Equal(t, "home/rtl_devices/42/radio_status_101", testTopics.Status("101"))

	cfg := utils.DefaultConfig()
	cfg.Bridge.TopicPrefix = "site/"
	cfg.Bridge.ID = "Bridge-42"
	got := TopicsFromConfig(cfg)
	assert.Equal(t, Topics{Prefix: "site", BridgeID: "bridge42"}, got)
}

func TestClientOptions(t *testing.T) {
	cfg := utils.DefaultConfig()
	cfg.MQTT.Host = "broker"
	cfg.MQTT.User = "u"
	opts := ClientOptions(cfg, testTopics)

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
	assert.True(t, strings.HasPrefix(opts.ClientID, "gortlbridge-"))
	assert.Equal(t, "u", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.True(t, opts.WillRetained)
	assert.Equal(t, testTopics.Availability(), opts.WillTopic)
	assert.Equal(t, []byte("offline"), opts.WillPayload)

	cfg.MQTT.ClientID = "fixed"
	assert.Equal(t, "fixed", ClientOptions(cfg, testTopics).ClientID)
}

func TestOnConnect(t *testing.T) {
	c := &fakeClient{connected: true}
	m := NewMQTT(c, testTopics, 0, &restarts{})
	m.OnConnect(c)

	require.Len(t, c.sent(), 1)
	assert.Equal(t, published{topic: testTopics.Availability(), payload: "online", retained: true}, c.sent()[0])
	assert.Equal(t, []string{"home/status/rtl_bridge_dev/restart/#"}, c.subscribed)
}

func TestConnectSetsRestarter(t *testing.T) {
	c := &fakeClient{}
	r := &restarts{}
	m := NewMQTT(c, testTopics, 0, nil)
	require.NoError(t, m.Connect(r))

	assert.True(t, m.HandleCommand(testTopics.Restart()))
	assert.Equal(t, 1, r.all)
}

func TestOnConnectWithoutRestarter(t *testing.T) {
	c := &fakeClient{connected: true}
	NewMQTT(c, testTopics, 0, nil).OnConnect(c)
	assert.Empty(t, c.subscribed)
}

func TestHandleCommand(t *testing.T) {
	r := &restarts{known: map[string]bool{"101": true}}
	m := NewMQTT(&fakeClient{}, testTopics, 0, r)

	assert.True(t, m.HandleCommand("home/status/rtl_bridge_dev/restart/set"))
	assert.Equal(t, 1, r.all)

	assert.True(t, m.HandleCommand("home/status/rtl_bridge_dev/restart/101/set"))
	assert.False(t, m.HandleCommand("home/status/rtl_bridge_dev/restart/999/set"))
	assert.Equal(t, []string{"101", "999"}, r.radio)

	assert.False(t, m.HandleCommand("home/status/rtl_bridge_dev/restart/101/get"))
	assert.False(t, m.HandleCommand("home/status/rtl_bridge_dev/restart/a/b/set"))
	assert.False(t, m.HandleCommand("home/status/rtl_bridge/restart/set"))
	assert.Equal(t, 1, r.all)
	assert.Len(t, r.radio, 2)
}

func TestRunDrainsQueue(t *testing.T) {
	c := &fakeClient{connected: true}
	m := NewMQTT(c, testTopics, 1, nil)

	m.PublishSensor(shared.SensorEvent{DeviceID: "7", Field: "temperature", Value: 71.456})
	m.PublishBattery(shared.BatteryEvent{DeviceID: "7", IsLow: true})
	m.PublishStatus(shared.StatusEvent{RadioID: "101", State: shared.StateOnline})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Run(ctx)

	assert.Equal(t, []published{
		{topic: "home/rtl_devices/7/temperature", payload: "71.46", retained: true},
		{topic: "home/rtl_devices/7/battery_low", payload: "ON", retained: true},
		{topic: "home/rtl_devices/42/radio_status_101", payload: "Online", retained: true},
	}, c.sent())
}

func TestClose(t *testing.T) {
	c := &fakeClient{connected: true}
	NewMQTT(c, testTopics, 0, nil).Close()

	require.Len(t, c.sent(), 1)
	assert.Equal(t, "offline", c.sent()[0].payload)
	assert.True(t, c.disconnected)
}

func TestLineProtocol(t *testing.T) {
	at := time.Unix(1700000000, 0)

	got, err := LineProtocol(shared.SensorEvent{
		RadioID: "101", DeviceID: "7", DeviceModel: "Acurite Tower",
		Field: "temperature", Value: 71.456, Samples: 3, Time: at,
	})
	require.NoError(t, err)
	assert.Equal(t, `rtl_433,device=7,model=Acurite\ Tower,radio=101 temperature=71.46,samples=3i 1700000000000000000`, got)

	got, err = LineProtocol(shared.SensorEvent{DeviceID: "7", Field: "state", Value: `say "hi"`, Time: at})
	require.NoError(t, err)
	assert.Equal(t, `rtl_433,device=7 state="say \"hi\"" 1700000000000000000`, got)

	got, err = LineProtocol(shared.BatteryEvent{RadioID: "101", DeviceID: "7", DeviceModel: "X", IsLow: false, Time: at})
	require.NoError(t, err)
	assert.Equal(t, `rtl_433_battery,device=7,model=X,radio=101 low=false 1700000000000000000`, got)

	got, err = LineProtocol(shared.StatusEvent{RadioID: "101", RadioName: "RTL_101", State: shared.StateError, Reason: "Error: USB Busy", Time: at})
	require.NoError(t, err)
	assert.Equal(t, `rtl_433_radio,name=RTL_101,radio=101 state="Error",reason="Error: USB Busy" 1700000000000000000`, got)

	_, err = LineProtocol("nope")
	assert.Error(t, err)
}

func TestTelegrafPosts(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegraf(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tg.Run(ctx)
		close(done)
	}()

	tg.PublishSensor(shared.SensorEvent{DeviceID: "7", Field: "humidity", Value: 40.0, Time: time.Unix(1, 0)})
	tg.PublishBattery(shared.BatteryEvent{DeviceID: "7", IsLow: true, Time: time.Unix(2, 0)})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "rtl_433,device=7 humidity=40 1000000000", bodies[0])
	assert.Equal(t, "rtl_433_battery,device=7 low=true 2000000000", bodies[1])
}

func TestTelegrafDrainsQueueOnShutdown(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := NewTelegraf(srv.URL)
	tg.PublishStatus(shared.StatusEvent{RadioID: "101", State: shared.StateStopped, Time: time.Unix(3, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tg.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`rtl_433_radio,radio=101 state="Stopped",reason="" 3000000000`}, bodies)
}

type countPublisher struct{ n int }

func (c *countPublisher) PublishStatus(shared.StatusEvent)   { c.n++ }
func (c *countPublisher) PublishSensor(shared.SensorEvent)   { c.n++ }
func (c *countPublisher) PublishBattery(shared.BatteryEvent) { c.n++ }

func TestFanout(t *testing.T) {
	a, b := &countPublisher{}, &countPublisher{}
	f := NewFanout(a, nil, b)
	require.Len(t, f, 2)

	f.PublishStatus(shared.StatusEvent{})
	f.PublishSensor(shared.SensorEvent{})
	f.PublishBattery(shared.BatteryEvent{})
	assert.Equal(t, 3, a.n)
	assert.Equal(t, 3, b.n)
}
