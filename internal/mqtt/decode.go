package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"cloudpico-humidity/internal/humidity"
)

// DecodeMessage turns an inbound MQTT payload into a flow message.
//
// A JSON object becomes the message itself, with topic defaulting to the MQTT
// topic. Any other JSON value becomes payload. Anything that is not JSON is
// kept as a string payload.
func DecodeMessage(topic string, payload []byte) humidity.Message {
	msg := humidity.Message{}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil || !atEOF(dec) {
		msg[humidity.KeyPayload] = string(payload)
		msg[humidity.KeyTopic] = topic
		return msg
	}

	if obj, ok := v.(map[string]any); ok {
		for k, val := range obj {
			msg[k] = val
		}
		if _, has := msg[humidity.KeyTopic]; !has {
			msg[humidity.KeyTopic] = topic
		}
		return msg
	}

	msg[humidity.KeyPayload] = v
	msg[humidity.KeyTopic] = topic
	return msg
}

func atEOF(dec *json.Decoder) bool {
	_, err := dec.Token()
	return errors.Is(err, io.EOF)
}

// EncodeMessage is the outbound wire form of a message.
func EncodeMessage(msg humidity.Message) ([]byte, error) {
	return json.Marshal(msg)
}
