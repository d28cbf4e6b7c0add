// Package humidity pairs independently arriving temperature and relative
// humidity messages into readings and derives dew point and absolute
// humidity from them.
package humidity

// Config is fixed when a Node is created.
type Config struct {
	Name             string
	Formula          Formula
	TemperatureTopic string
	HumidityTopic    string
}

// State is the observable resting state of a Node.
type State int

const (
	Empty State = iota
	PartialTemperature
	PartialHumidity
)

func (s State) String() string {
	switch s {
	case PartialTemperature:
		return "partial-temperature"
	case PartialHumidity:
		return "partial-humidity"
	default:
		return "empty"
	}
}

// Reading is one complete, computed measurement.
type Reading struct {
	Formula          Formula
	Temperature      float64
	RelativeHumidity float64
	DewPoint         float64
	AbsoluteHumidity float64
}

// Emission is what a Node hands back when a reading completes.
type Emission struct {
	Message Message
	Reading Reading
}

// Node holds at most one pending temperature and one pending humidity.
// It is not safe for concurrent use; callers deliver messages one at a time.
type Node struct {
	cfg         Config
	temperature *float64
	humidity    *float64
}

func NewNode(cfg Config) *Node {
	return &Node{cfg: cfg}
}

func (n *Node) Config() Config { return n.cfg }

func (n *Node) State() State {
	switch {
	case n.temperature != nil:
		return PartialTemperature
	case n.humidity != nil:
		return PartialHumidity
	default:
		return Empty
	}
}

// OnMessage classifies msg, validates the value it carries and stores it.
// It returns a non-nil Emission when both slots are filled, after which the
// node is empty again. A *RangeError leaves the stored slots untouched.
// Unaddressed messages return (nil, nil).
func (n *Node) OnMessage(msg Message) (*Emission, error) {
	in := Classify(msg, n.cfg)

	switch in.Kind {
	case Ignored:
		return nil, nil
	case Temperature:
		if err := ValidateTemperature(n.cfg.Formula, in.Temperature); err != nil {
			return nil, err
		}
		n.temperature = &in.Temperature
	case Humidity:
		if err := ValidateHumidity(in.Humidity); err != nil {
			return nil, err
		}
		n.humidity = &in.Humidity
	case Both:
		if err := ValidateTemperature(n.cfg.Formula, in.Temperature); err != nil {
			return nil, err
		}
		if err := ValidateHumidity(in.Humidity); err != nil {
			return nil, err
		}
		n.temperature = &in.Temperature
		n.humidity = &in.Humidity
	}

	if n.temperature == nil || n.humidity == nil {
		return nil, nil
	}

	r := Reading{
		Formula:          n.cfg.Formula,
		Temperature:      *n.temperature,
		RelativeHumidity: *n.humidity,
	}
	r.DewPoint, r.AbsoluteHumidity = Compute(r.Formula, r.Temperature, r.RelativeHumidity)
	n.Reset()

	return &Emission{Message: Emit(msg, r), Reading: r}, nil
}

// Reset clears both slots.
func (n *Node) Reset() {
	n.temperature = nil
	n.humidity = nil
}

// Emit copies trigger and sets the computed fields on the copy.
func Emit(trigger Message, r Reading) Message {
	out := trigger.Clone()
	out[KeyDewPoint] = r.DewPoint
	out[KeyAbsoluteHumidity] = r.AbsoluteHumidity
	return out
}
