// Package mediastream receives the carrier's live call audio over a websocket
// and feeds it to a speech provider, recording final transcripts on the
// call's session.
package mediastream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// frame is one message of the carrier's media stream protocol.
type frame struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Start     *startFrame `json:"start,omitempty"`
	Media     *mediaFrame `json:"media,omitempty"`
}

type startFrame struct {
	CallSID          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sampleRate"`
		Channels   int    `json:"channels"`
	} `json:"mediaFormat"`
}

type mediaFrame struct {
	Track   string `json:"track"`
	Payload string `json:"payload"`
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("mediastream: decode frame: %w", err)
	}
	return f, nil
}

// audio returns the raw mu-law bytes of a media frame.
func (m *mediaFrame) audio() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("mediastream: payload: %w", err)
	}
	return b, nil
}

// callID prefers the parameter the call flow attaches to <Stream>.
func (s *startFrame) callID() string {
	if id := s.CustomParameters["call_sid"]; id != "" {
		return id
	}
	return s.CallSID
}

func (s *startFrame) language() string {
	return s.CustomParameters["language"]
}

func (s *startFrame) sampleRate() int {
	if s.MediaFormat.SampleRate > 0 {
		return s.MediaFormat.SampleRate
	}
	return 8000
}
