package telephony

import (
	"strings"
	"testing"
)

func TestRenderTwiMLGatherWithPrompts(t *testing.T) {
	var r Response
	r.Add(
		Gather{Input: "dtmf", NumDigits: 6, Action: "/voice/pin", Timeout: 10,
			Prompts: []Say{{Text: "Please enter your 6 digit PIN.", Voice: "Polly.Joanna", Language: "en-US"}}},
		Say{Text: "I did not hear anything. Goodbye."},
		Hangup{},
	)
	xml, err := RenderTwiML(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<Response>`,
		`<Gather input="dtmf" numDigits="6" action="/voice/pin" timeout="10">`,
		`<Say voice="Polly.Joanna" language="en-US">Please enter your 6 digit PIN.</Say>`,
		`<Hangup></Hangup>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
	if !r.Terminal() {
		t.Fatalf("expected terminal response")
	}
}

func TestRenderTwiMLEscapesText(t *testing.T) {
	var r Response
	r.Add(Say{Text: `Tom & Jerry <say> "hi"`})
	xml, err := RenderTwiML(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "Tom &amp; Jerry &lt;say&gt;") {
		t.Fatalf("expected escaped text: %s", xml)
	}
}

func TestRenderTwiMLRecordAndStream(t *testing.T) {
	var r Response
	r.Add(
		Start{Stream: Stream{URL: "wss://x/voice/stream", Track: "inbound_track", Parameters: []Parameter{{Name: "language", Value: "es"}}}},
		Record{Action: "/voice/recording", MaxLength: 120, PlayBeep: "true", FinishOnKey: "#"},
	)
	xml, err := RenderTwiML(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Stream url="wss://x/voice/stream" track="inbound_track">`,
		`<Parameter name="language" value="es"></Parameter>`,
		`<Record action="/voice/recording" maxLength="120" playBeep="true" finishOnKey="#">`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
	if r.Terminal() {
		t.Fatalf("record is not terminal")
	}
}

func TestRenderTwiMLReject(t *testing.T) {
	var r Response
	xml, err := RenderTwiML(*r.Add(Reject{Reason: "rejected"}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, `<Reject reason="rejected">`) {
		t.Fatalf("expected reject: %s", xml)
	}
}

func TestRenderTwiMLEmpty(t *testing.T) {
	if _, err := RenderTwiML(Response{}); err != ErrEmptyResponse {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}
