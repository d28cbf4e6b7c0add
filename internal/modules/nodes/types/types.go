package types

import "time"

// Reading is one emitted measurement as stored in the history log.
type Reading struct {
	ID                  int64     `json:"id"`
	Node                string    `json:"node"`
	MsgID               string    `json:"msgId"`
	Time                time.Time `json:"time"`
	Formula             string    `json:"formula"`
	TemperatureC        float64   `json:"temperature"`
	HumidityPct         float64   `json:"relativeHumidity"`
	DewPointC           *float64  `json:"dewPoint"`
	AbsoluteHumidityGM3 float64   `json:"absoluteHumidity"`
}

// Rejection is one message that failed validation.
type Rejection struct {
	ID      int64     `json:"id"`
	Node    string    `json:"node"`
	MsgID   string    `json:"msgId"`
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

const (
	RejectionInvalidHumidity    = "invalid_humidity"
	RejectionInvalidTemperature = "invalid_temperature"
	RejectionOther              = "error"
)
