package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dokzlo13/castlightd/internal/eventbus"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishCall struct {
	Topic    string
	Retained bool
	Payload  interface{}
}

type fakeClient struct {
	mu           sync.Mutex
	published    []publishCall
	connectErr   error
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return &fakeToken{err: c.connectErr} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishCall{Topic: topic, Retained: retained, Payload: payload})
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = true }

func (c *fakeClient) calls() []publishCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishCall(nil), c.published...)
}

func TestPublisher_Transition(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(client, "home/castlightd")
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	p.handleTransition(eventbus.Event{
		Type: eventbus.EventTypeTransition,
		Time: at,
		Data: map[string]any{
			"in_use": true, "phase": "suppressing", "outcome": "turned off",
			"session": "s1", "device": "Living Room TV", "group": "1",
		},
	})

	calls := client.calls()
	if len(calls) != 1 {
		t.Fatalf("published %d messages, want 1", len(calls))
	}
	if calls[0].Topic != "home/castlightd/state" || !calls[0].Retained {
		t.Errorf("publish = %+v, want retained home/castlightd/state", calls[0])
	}

	var got StatePayload
	if err := json.Unmarshal(calls[0].Payload.([]byte), &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	want := StatePayload{InUse: true, Phase: "suppressing", Outcome: "turned off", Session: "s1", Device: "Living Room TV", Group: "1", At: at}
	if got != want {
		t.Errorf("payload = %+v, want %+v", got, want)
	}
}

func TestPublisher_Status(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(client, "castlightd")

	p.handleStatus(eventbus.Event{Type: eventbus.EventTypeStatus, Data: map[string]any{"message": "TV not in use anymore, restoring lights"}})
	p.handleStatus(eventbus.Event{Type: eventbus.EventTypeStatus, Data: map[string]any{}})

	calls := client.calls()
	if len(calls) != 1 {
		t.Fatalf("published %d messages, want 1 (empty status skipped)", len(calls))
	}
	if calls[0].Topic != "castlightd/status" || calls[0].Retained {
		t.Errorf("publish = %+v", calls[0])
	}
	if calls[0].Payload != "TV not in use anymore, restoring lights" {
		t.Errorf("payload = %v", calls[0].Payload)
	}
}

func TestPublisher_Close(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(client, "castlightd")

	p.Close()

	calls := client.calls()
	if len(calls) != 1 || calls[0].Topic != "castlightd/availability" || calls[0].Payload != "offline" || !calls[0].Retained {
		t.Errorf("Close() published %+v, want retained offline availability", calls)
	}
	if !client.disconnected {
		t.Error("Close() should disconnect")
	}
}

func TestPublisher_ConnectError(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("not authorized")}
	p := NewWithClient(client, "castlightd")

	if err := p.Connect(); err == nil {
		t.Error("Connect() should return the broker error")
	}
}

func TestPublisher_SubscribeViaBus(t *testing.T) {
	client := &fakeClient{}
	p := NewWithClient(client, "castlightd")
	bus := eventbus.NewWithConfig(1, 8)
	p.Subscribe(bus)

	bus.Publish(eventbus.Event{Type: eventbus.EventTypeStatus, Data: map[string]any{"message": "hello"}})
	bus.Publish(eventbus.Event{Type: eventbus.EventTypeProbeFailed, Data: map[string]any{"error": "x"}})

	deadline := time.Now().Add(2 * time.Second)
	for len(client.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	calls := client.calls()
	if len(calls) != 1 || calls[0].Topic != "castlightd/status" {
		t.Errorf("published %+v, want only the status message", calls)
	}
}
