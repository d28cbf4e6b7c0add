// Package flow hosts humidity nodes: it owns one node per definition,
// serialises deliveries to each node and fans emissions and rejections out to
// the registered sinks.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cloudpico-humidity/internal/humidity"
)

var ErrUnknownNode = errors.New("unknown node")

// Definition is the deployable description of one node. Input is the MQTT
// topic filter the node subscribes to, Output the topic emissions go to.
type Definition struct {
	Name             string `json:"name"`
	Formula          string `json:"formula"`
	TemperatureTopic string `json:"temperatureTopic,omitempty"`
	HumidityTopic    string `json:"humidityTopic,omitempty"`
	Input            string `json:"input"`
	Output           string `json:"output"`
}

func (d Definition) NodeConfig() humidity.Config {
	f, _ := humidity.ParseFormula(d.Formula)
	return humidity.Config{
		Name:             d.Name,
		Formula:          f,
		TemperatureTopic: d.TemperatureTopic,
		HumidityTopic:    d.HumidityTopic,
	}
}

// Sink receives the results of deliveries. Emit is called once per completed
// reading, Reject once per validation failure.
type Sink interface {
	Emit(ctx context.Context, def Definition, em *humidity.Emission) error
	Reject(ctx context.Context, def Definition, msg humidity.Message, err error) error
}

type Status int

const (
	Ignored Status = iota
	Pending
	Emitted
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Emitted:
		return "emitted"
	case Rejected:
		return "rejected"
	default:
		return "ignored"
	}
}

// Outcome describes what one delivery did.
type Outcome struct {
	Status   Status
	Emission *humidity.Emission
	Err      error
}

type runner struct {
	mu   sync.Mutex
	def  Definition
	node *humidity.Node
}

// Observer is notified of every delivery outcome, e.g. for metrics.
type Observer func(node string, status Status)

type Runtime struct {
	logger   *slog.Logger
	sinks    []Sink
	observer Observer

	mu      sync.RWMutex
	runners map[string]*runner
}

func NewRuntime(logger *slog.Logger, sinks ...Sink) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		logger:  logger,
		sinks:   sinks,
		runners: make(map[string]*runner),
	}
}

// SetObserver must be called before the first Deliver.
func (r *Runtime) SetObserver(o Observer) {
	r.observer = o
}

// Deploy replaces every running node with fresh ones built from defs. Pending
// readings of the previous deployment are dropped.
func (r *Runtime) Deploy(defs []Definition) error {
	next := make(map[string]*runner, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("deploy: node name is required")
		}
		if _, dup := next[d.Name]; dup {
			return fmt.Errorf("deploy: duplicate node name %q", d.Name)
		}
		if _, ok := humidity.ParseFormula(d.Formula); !ok && d.Formula != "" {
			r.logger.Warn("unknown formula, using wetterochs", "node", d.Name, "formula", d.Formula)
		}
		next[d.Name] = &runner{def: d, node: humidity.NewNode(d.NodeConfig())}
	}

	r.mu.Lock()
	prev := len(r.runners)
	r.runners = next
	r.mu.Unlock()

	r.logger.Info("nodes deployed", "count", len(next), "replaced", prev)
	return nil
}

// Nodes returns the deployed definitions sorted by name.
func (r *Runtime) Nodes() []Definition {
	r.mu.RLock()
	out := make([]Definition, 0, len(r.runners))
	for _, rn := range r.runners {
		out = append(out, rn.def)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Node returns the definition deployed under name.
func (r *Runtime) Node(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rn, ok := r.runners[name]
	if !ok {
		return Definition{}, false
	}
	return rn.def, true
}

// Deliver hands a copy of msg to the named node; msg itself is not modified.
// Validation failures are reported to the sinks and returned in Outcome.Err;
// the returned error is reserved for unknown nodes and sink failures.
func (r *Runtime) Deliver(ctx context.Context, name string, msg humidity.Message) (Outcome, error) {
	if msg == nil {
		msg = humidity.Message{}
	}
	msg = msg.Clone()
	if msg.ID() == "" {
		msg[humidity.KeyMsgID] = uuid.NewString()
	}
	log := r.logger.With("node", name, "msg_id", msg.ID())

	// Held until the sinks are done so emissions leave in delivery order.
	rn, err := r.lockRunner(name, log)
	if err != nil {
		return Outcome{}, err
	}
	defer rn.mu.Unlock()

	kind := humidity.Classify(msg, rn.node.Config()).Kind
	em, err := rn.node.OnMessage(msg)
	state := rn.node.State()

	var out Outcome
	switch {
	case err != nil:
		out = Outcome{Status: Rejected, Err: err}
		log.Error("message rejected", "error", err)
	case em != nil:
		out = Outcome{Status: Emitted, Emission: em}
		log.Debug("reading emitted",
			"temperature", em.Reading.Temperature,
			"relative_humidity", em.Reading.RelativeHumidity,
			"dew_point", em.Reading.DewPoint,
			"absolute_humidity", em.Reading.AbsoluteHumidity,
		)
	case kind == humidity.Ignored:
		out = Outcome{Status: Ignored}
		log.Debug("message ignored")
	default:
		out = Outcome{Status: Pending}
		log.Debug("reading pending", "kind", kind.String(), "state", state.String())
	}

	if r.observer != nil {
		r.observer(name, out.Status)
	}

	var errs []error
	for _, s := range r.sinks {
		switch out.Status {
		case Emitted:
			if serr := s.Emit(ctx, rn.def, em); serr != nil {
				errs = append(errs, serr)
			}
		case Rejected:
			if serr := s.Reject(ctx, rn.def, msg, err); serr != nil {
				errs = append(errs, serr)
			}
		}
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("deliver to %q: %w", name, errors.Join(errs...))
	}
	return out, nil
}

// lockRunner returns the runner deployed under name with its mutex held. A
// runner replaced by Deploy while waiting for the lock is released and the
// current one is taken instead, so messages never land in a discarded node.
func (r *Runtime) lockRunner(name string, log *slog.Logger) (*runner, error) {
	for {
		r.mu.RLock()
		rn, ok := r.runners[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownNode, name)
		}

		rn.mu.Lock()
		r.mu.RLock()
		current := r.runners[name] == rn
		r.mu.RUnlock()
		if current {
			return rn, nil
		}
		rn.mu.Unlock()
		log.Debug("node redeployed while waiting, retrying delivery")
	}
}
