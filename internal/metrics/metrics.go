// Package metrics keeps the delivery counters and renders them in the
// Prometheus text exposition format.
package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"cloudpico-humidity/internal/flow"
)

const (
	messagesTotalName = "humidity_messages_total"
	nodesDeployedName = "humidity_nodes_deployed"
)

type counterKey struct {
	node    string
	outcome string
}

type Registry struct {
	mu       sync.Mutex
	messages map[counterKey]uint64
	deployed int
}

func NewRegistry() *Registry {
	return &Registry{messages: make(map[counterKey]uint64)}
}

// Observe counts one delivery outcome. It matches flow.Observer.
func (r *Registry) Observe(node string, status flow.Status) {
	r.mu.Lock()
	r.messages[counterKey{node: node, outcome: status.String()}]++
	r.mu.Unlock()
}

func (r *Registry) SetDeployed(n int) {
	r.mu.Lock()
	r.deployed = n
	r.mu.Unlock()
}

// Families snapshots the current values.
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	keys := make([]counterKey, 0, len(r.messages))
	for k := range r.messages {
		keys = append(keys, k)
	}
	values := make(map[counterKey]uint64, len(r.messages))
	for k, v := range r.messages {
		values[k] = v
	}
	deployed := r.deployed
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].outcome < keys[j].outcome
	})

	messages := &dto.MetricFamily{
		Name: proto.String(messagesTotalName),
		Help: proto.String("Messages delivered to humidity nodes, by outcome."),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	for _, k := range keys {
		messages.Metric = append(messages.Metric, &dto.Metric{
			Label: []*dto.LabelPair{
				{Name: proto.String("node"), Value: proto.String(k.node)},
				{Name: proto.String("outcome"), Value: proto.String(k.outcome)},
			},
			Counter: &dto.Counter{Value: proto.Float64(float64(values[k]))},
		})
	}

	nodes := &dto.MetricFamily{
		Name: proto.String(nodesDeployedName),
		Help: proto.String("Humidity nodes currently deployed."),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(float64(deployed))}},
		},
	}

	out := []*dto.MetricFamily{nodes}
	if len(messages.Metric) > 0 {
		out = append([]*dto.MetricFamily{messages}, out...)
	}
	return out
}

// Handler serves the registry in text format.
func (r *Registry) Handler() http.HandlerFunc {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range r.Families() {
			if err := enc.Encode(mf); err != nil {
				slog.Error("metrics: encode failed", "family", mf.GetName(), "error", err)
				return
			}
		}
	}
}
