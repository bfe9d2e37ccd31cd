// Package publish mirrors each snapshot to an MQTT broker as JSON.
//
// The mirror is best-effort: the tick loop never waits longer than the
// publish timeout, and a broker outage only costs the snapshots sent while
// it lasts. paho reconnects in the background.
package publish

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"lcdstat/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotConnected is returned while the broker connection is down.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrTimeout is returned when the broker did not take a message in time.
	ErrTimeout = errors.New("mqtt publish timed out")
)

const (
	defaultPublishWait = 500 * time.Millisecond
	connectWait        = 5 * time.Second
	disconnectQuiesce  = 250
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	Port     int
	Topic    string
	ClientID string
	// PublishWait bounds how long Publish blocks; zero uses 500ms.
	PublishWait time.Duration
}

// tokenPublisher is the slice of mqtt.Client the publisher uses.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Publisher sends snapshots to one topic at QoS 0.
type Publisher struct {
	client tokenPublisher
	topic  string
	host   string
	wait   time.Duration
}

// Payload is the JSON document published for each snapshot. Fields whose
// metric is unavailable are omitted.
type Payload struct {
	Host        string   `json:"host"`
	Time        int64    `json:"ts"`
	CPUPercent  *float64 `json:"cpu_pct,omitempty"`
	CPUTempC    *float64 `json:"cpu_temp_c,omitempty"`
	MemUsed     *uint64  `json:"mem_used,omitempty"`
	MemTotal    *uint64  `json:"mem_total,omitempty"`
	MemPercent  *float64 `json:"mem_pct,omitempty"`
	Disks       []Disk   `json:"disks,omitempty"`
	TxPerSecond *uint64  `json:"tx_bps,omitempty"`
	RxPerSecond *uint64  `json:"rx_bps,omitempty"`
	IPv4        string   `json:"ipv4,omitempty"`
	UptimeSec   *int64   `json:"uptime_s,omitempty"`
	Missing     []string `json:"missing,omitempty"`
}

// Disk is one mount point in a Payload.
type Disk struct {
	Path    string  `json:"path"`
	Used    uint64  `json:"used"`
	Total   uint64  `json:"total"`
	Percent float64 `json:"pct"`
}

// Connect creates the paho client and starts connecting. A broker that is
// down at startup is not fatal: the client keeps retrying and Publish
// reports ErrNotConnected until it succeeds.
func Connect(opts Options) (*Publisher, error) {
	if strings.TrimSpace(opts.Broker) == "" {
		return nil, errors.New("mqtt broker is empty")
	}
	host, _ := os.Hostname()
	clientID := strings.TrimSpace(opts.ClientID)
	if clientID == "" {
		clientID = "lcdstat-" + host
	}

	co := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port)
	co.AddBroker(brokerURL)
	co.SetClientID(clientID)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetConnectTimeout(10 * time.Second)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetMaxReconnectInterval(1 * time.Minute)
	co.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", brokerURL)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v (will reconnect)", err)
	})

	client := mqtt.NewClient(co)
	log.Printf("MQTT: connecting to %s as %s", brokerURL, clientID)
	token := client.Connect()
	if token.WaitTimeout(connectWait) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return newPublisher(client, opts.Topic, host, opts.PublishWait), nil
}

func newPublisher(client tokenPublisher, topic, host string, wait time.Duration) *Publisher {
	if wait <= 0 {
		wait = defaultPublishWait
	}
	return &Publisher{client: client, topic: topic, host: host, wait: wait}
}

// Publish encodes s and sends it. It never blocks longer than the
// configured wait.
func (p *Publisher) Publish(s metrics.Snapshot) error {
	if p == nil || p.client == nil {
		return nil
	}
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	body, err := Encode(s, p.host)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, false, body)
	if !token.WaitTimeout(p.wait) {
		return ErrTimeout
	}
	return token.Error()
}

// Close disconnects, giving in-flight messages 250ms.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(disconnectQuiesce)
}

// Encode renders s as the published JSON document.
func Encode(s metrics.Snapshot, host string) ([]byte, error) {
	out := Payload{
		Host: host,
		Time: s.At.Unix(),
	}
	if s.Has(metrics.MetricCPU) {
		out.CPUPercent = &s.CPUPercent
	}
	if s.Has(metrics.MetricTemperature) {
		out.CPUTempC = &s.CPUTempC
	}
	if s.Has(metrics.MetricMemory) {
		out.MemUsed, out.MemTotal, out.MemPercent = &s.MemUsed, &s.MemTotal, &s.MemPercent
	}
	for _, d := range s.Disks {
		if d.Available {
			out.Disks = append(out.Disks, Disk{Path: d.Path, Used: d.Used, Total: d.Total, Percent: d.Percent})
		}
	}
	if s.Has(metrics.MetricNetwork) {
		tx, rx := s.Rates()
		out.TxPerSecond, out.RxPerSecond = &tx, &rx
	}
	out.IPv4 = s.IPv4
	if s.Has(metrics.MetricUptime) {
		up := int64(s.Uptime / time.Second)
		out.UptimeSec = &up
	}
	for _, m := range metrics.AllMetrics {
		if !s.Has(m) {
			out.Missing = append(out.Missing, m.String())
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return body, nil
}
