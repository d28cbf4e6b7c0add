package humidity

// Datapoint identifiers recognised regardless of configured topics.
const (
	DatapointTemperature = "ACTUAL_TEMPERATURE"
	DatapointHumidity    = "HUMIDITY"
)

// Kind tells which quantity a message carries.
type Kind int

const (
	Ignored Kind = iota
	Temperature
	Humidity
	// Both is only produced by the direct-field scheme, when a message
	// carries temperature and relativeHumidity side by side.
	Both
)

func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Both:
		return "both"
	default:
		return "ignored"
	}
}

// Input is the classified content of a message.
type Input struct {
	Kind        Kind
	Temperature float64
	Humidity    float64
}

// Classify resolves which quantity msg addresses. Direct fields win over
// datapoint identifiers, which win over configured topics.
func Classify(msg Message, cfg Config) Input {
	t, hasT := msg.Number(KeyTemperature)
	rh, hasRH := msg.Number(KeyRelativeHumidity)
	switch {
	case hasT && hasRH:
		return Input{Kind: Both, Temperature: t, Humidity: rh}
	case hasT:
		return Input{Kind: Temperature, Temperature: t}
	case hasRH:
		return Input{Kind: Humidity, Humidity: rh}
	}

	if dp, ok := msg.Text(KeyDatapoint); ok {
		switch dp {
		case DatapointTemperature:
			return payloadInput(msg, Temperature)
		case DatapointHumidity:
			return payloadInput(msg, Humidity)
		}
	}

	if topic, ok := msg.Text(KeyTopic); ok && topic != "" {
		switch topic {
		case cfg.TemperatureTopic:
			return payloadInput(msg, Temperature)
		case cfg.HumidityTopic:
			return payloadInput(msg, Humidity)
		}
	}

	return Input{Kind: Ignored}
}

func payloadInput(msg Message, kind Kind) Input {
	v, ok := msg.Number(KeyPayload)
	if !ok {
		return Input{Kind: Ignored}
	}
	if kind == Temperature {
		return Input{Kind: Temperature, Temperature: v}
	}
	return Input{Kind: Humidity, Humidity: v}
}
