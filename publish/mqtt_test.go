package publish

import (
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lcdstat/metrics"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	open         bool
	token        *fakeToken
	topic        string
	payload      []byte
	disconnected uint
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.payload = payload.([]byte)
	return c.token
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = quiesce }

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		At:         time.Unix(1772366400, 0),
		CPUPercent: 42,
		MemPercent: 60,
		Disks:      []metrics.DiskUsage{{Path: "/", Used: 75, Total: 100, Percent: 75, Available: true}},
		NetSent:    2048,
		NetRecv:    4096,
		NetWindow:  2 * time.Second,
		IPv4:       "10.0.0.7",
		Missing:    metrics.MetricTemperature,
	}
}

func TestEncodeOmitsMissingMetrics(t *testing.T) {
	body, err := Encode(sampleSnapshot(), "pi")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got Payload
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Host != "pi" || got.Time != 1772366400 {
		t.Fatalf("unexpected header fields %+v", got)
	}
	if got.CPUTempC != nil {
		t.Fatalf("expected missing temperature omitted, got %v", *got.CPUTempC)
	}
	if got.CPUPercent == nil || *got.CPUPercent != 42 {
		t.Fatalf("expected cpu 42, got %v", got.CPUPercent)
	}
	if got.TxPerSecond == nil || *got.TxPerSecond != 1024 || *got.RxPerSecond != 2048 {
		t.Fatalf("expected per-second rates 1024/2048, got %v/%v", got.TxPerSecond, got.RxPerSecond)
	}
	if len(got.Missing) != 1 || got.Missing[0] != "temperature" {
		t.Fatalf("expected missing=[temperature], got %v", got.Missing)
	}
	if !strings.Contains(string(body), `"disks":[{"path":"/"`) {
		t.Fatalf("expected disk list in %s", body)
	}
}

func TestPublishSendsToTopic(t *testing.T) {
	client := &fakeClient{open: true, token: &fakeToken{done: true}}
	p := newPublisher(client, "lcdstat/snapshot", "pi", 0)
	if err := p.Publish(sampleSnapshot()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if client.topic != "lcdstat/snapshot" {
		t.Fatalf("unexpected topic %q", client.topic)
	}
	if !strings.Contains(string(client.payload), `"ipv4":"10.0.0.7"`) {
		t.Fatalf("unexpected payload %s", client.payload)
	}
}

func TestPublishErrors(t *testing.T) {
	offline := newPublisher(&fakeClient{open: false}, "t", "pi", 0)
	if err := offline.Publish(sampleSnapshot()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	slow := newPublisher(&fakeClient{open: true, token: &fakeToken{done: false}}, "t", "pi", time.Millisecond)
	if err := slow.Publish(sampleSnapshot()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	rejected := newPublisher(&fakeClient{open: true, token: &fakeToken{done: true, err: errors.New("refused")}}, "t", "pi", 0)
	if err := rejected.Publish(sampleSnapshot()); err == nil || err.Error() != "refused" {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	if err := p.Publish(sampleSnapshot()); err != nil {
		t.Fatalf("expected nil publisher to be a no-op, got %v", err)
	}
	p.Close()
}

func TestCloseDisconnects(t *testing.T) {
	client := &fakeClient{open: true}
	newPublisher(client, "t", "pi", 0).Close()
	if client.disconnected != 250 {
		t.Fatalf("expected 250ms quiesce, got %d", client.disconnected)
	}
}
