package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
)

// Response is a provider-agnostic list of call-control verbs, rendered to
// TwiML at the adapter boundary.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

// Add appends verbs and returns r for chaining.
func (r *Response) Add(verbs ...any) *Response {
	r.Verbs = append(r.Verbs, verbs...)
	return r
}

// Terminal reports whether the response ends the call.
func (r Response) Terminal() bool {
	for _, v := range r.Verbs {
		switch v.(type) {
		case Hangup, Reject:
			return true
		}
	}
	return false
}

type Say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

// Gather collects digits or speech, then posts them to Action. Prompts are
// nested so input can interrupt them.
type Gather struct {
	XMLName             xml.Name `xml:"Gather"`
	Input               string   `xml:"input,attr,omitempty"`
	NumDigits           int      `xml:"numDigits,attr,omitempty"`
	Action              string   `xml:"action,attr,omitempty"`
	Method              string   `xml:"method,attr,omitempty"`
	Timeout             int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout       string   `xml:"speechTimeout,attr,omitempty"`
	Language            string   `xml:"language,attr,omitempty"`
	ActionOnEmptyResult string   `xml:"actionOnEmptyResult,attr,omitempty"`
	Prompts             []Say    `xml:"Say"`
}

type Record struct {
	XMLName     xml.Name `xml:"Record"`
	Action      string   `xml:"action,attr,omitempty"`
	Method      string   `xml:"method,attr,omitempty"`
	MaxLength   int      `xml:"maxLength,attr,omitempty"`
	Timeout     int      `xml:"timeout,attr,omitempty"`
	PlayBeep    string   `xml:"playBeep,attr,omitempty"`
	FinishOnKey string   `xml:"finishOnKey,attr,omitempty"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type Reject struct {
	XMLName xml.Name `xml:"Reject"`
	Reason  string   `xml:"reason,attr,omitempty"`
}

type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type Redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Start forks call audio to a websocket without pausing the call.
type Start struct {
	XMLName xml.Name `xml:"Start"`
	Stream  Stream   `xml:"Stream"`
}

type Stream struct {
	URL        string      `xml:"url,attr"`
	Track      string      `xml:"track,attr,omitempty"`
	Parameters []Parameter `xml:"Parameter"`
}

type Parameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Fallback is served when a response cannot be rendered.
const Fallback = xml.Header + `<Response>
  <Say>Sorry, something went wrong. Goodbye.</Say>
  <Hangup></Hangup>
</Response>`

var ErrEmptyResponse = errors.New("telephony: response has no verbs")

// RenderTwiML encodes r as a TwiML document. Text is XML-escaped.
func RenderTwiML(r Response) (string, error) {
	if len(r.Verbs) == 0 {
		return "", ErrEmptyResponse
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
