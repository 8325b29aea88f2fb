// Package metrics counts relay traffic and renders it in the Prometheus text
// exposition format.
package metrics

import (
	"io"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// UnknownEvent labels messages whose event name could not be read.
const UnknownEvent = "unknown"

func eventLabel(event string) string {
	if event == "" {
		return UnknownEvent
	}
	return event
}

type dropKey struct {
	event, reason string
}

// Collector implements protocol.Recorder and the transport's drop counter.
type Collector struct {
	mu       sync.Mutex
	received map[string]uint64
	relayed  map[string]uint64
	dropped  map[dropKey]uint64
}

func NewCollector() *Collector {
	return &Collector{
		received: make(map[string]uint64),
		relayed:  make(map[string]uint64),
		dropped:  make(map[dropKey]uint64),
	}
}

func (c *Collector) Received(event string) {
	c.mu.Lock()
	c.received[eventLabel(event)]++
	c.mu.Unlock()
}

func (c *Collector) Relayed(event string, peers int) {
	if peers <= 0 {
		return
	}
	c.mu.Lock()
	c.relayed[event] += uint64(peers)
	c.mu.Unlock()
}

func (c *Collector) Dropped(event, reason string) {
	c.mu.Lock()
	c.dropped[dropKey{eventLabel(event), reason}]++
	c.mu.Unlock()
}

// Gauges are sampled at scrape time.
type Gauges struct {
	Rooms       int
	Clients     int
	Connections int
}

// Gather snapshots every counter plus the supplied gauges.
func (c *Collector) Gather(g Gauges) []*dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	return []*dto.MetricFamily{
		gauge("relay_rooms", "Rooms with at least one member.", float64(g.Rooms)),
		gauge("relay_clients", "Connections joined to a room.", float64(g.Clients)),
		gauge("relay_connections", "Open websocket connections.", float64(g.Connections)),
		counterByEvent("relay_messages_received_total", "Frames received per event.", c.received),
		counterByEvent("relay_messages_relayed_total", "Deliveries to peers per event.", c.relayed),
		c.droppedFamily(),
	}
}

// ContentType is the media type of the WriteText output.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// WriteText renders families in the text exposition format.
func WriteText(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Gauge: &dto.Gauge{Value: proto.Float64(v)},
		}},
	}
}

func counterByEvent(name, help string, values map[string]uint64) *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, event := range sortedKeys(values) {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{label("event", event)},
			Counter: &dto.Counter{Value: proto.Float64(float64(values[event]))},
		})
	}
	return mf
}

func (c *Collector) droppedFamily() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String("relay_messages_dropped_total"),
		Help: proto.String("Frames dropped per event and reason."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	keys := make([]dropKey, 0, len(c.dropped))
	for k := range c.dropped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].event != keys[j].event {
			return keys[i].event < keys[j].event
		}
		return keys[i].reason < keys[j].reason
	})
	for _, k := range keys {
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:   []*dto.LabelPair{label("event", k.event), label("reason", k.reason)},
			Counter: &dto.Counter{Value: proto.Float64(float64(c.dropped[k]))},
		})
	}
	return mf
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
