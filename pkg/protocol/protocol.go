package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame is the JSON unit exchanged with a hub.
type Frame struct {
	From    string          `json:"from"`
	To      string          `json:"to,omitempty"`
	Kind    string          `json:"kind"`
	Content json.RawMessage `json:"content"`
}

func NewFrame(from, kind string, v any) (Frame, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s content: %w", kind, err)
	}
	return Frame{From: from, Kind: kind, Content: raw}, nil
}

func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

func Decode(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
