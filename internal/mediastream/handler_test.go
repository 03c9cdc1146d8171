package mediastream

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbridge/internal/session"
	"callbridge/internal/speech"
)

type fakeSession struct {
	events chan speech.TranscriptEvent
	mu     sync.Mutex
	got    int
	once   sync.Once
}

func (s *fakeSession) Send(chunk []byte) error {
	s.mu.Lock()
	s.got += len(chunk)
	s.mu.Unlock()
	s.events <- speech.TranscriptEvent{Text: "partial", IsFinal: false}
	s.events <- speech.TranscriptEvent{Text: "hello there", IsFinal: true}
	return nil
}

func (s *fakeSession) Events() <-chan speech.TranscriptEvent { return s.events }

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeStreaming struct {
	sess *fakeSession
	opts speech.StreamOptions
	err  error
}

func (f *fakeStreaming) Name() string { return "fake-live" }

func (f *fakeStreaming) Open(_ context.Context, opts speech.StreamOptions) (speech.StreamSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opts = opts
	f.sess = &fakeSession{events: make(chan speech.TranscriptEvent, 16)}
	return f.sess, nil
}

type fakeBatch struct {
	mu   sync.Mutex
	wavs [][]byte
	lang string
}

func (f *fakeBatch) Name() string { return "fake-batch" }

func (f *fakeBatch) Transcribe(_ context.Context, wav []byte, language string) (speech.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wavs = append(f.wavs, wav)
	f.lang = language
	return speech.Transcript{Text: "buffered words", Language: language}, nil
}

func (f *fakeBatch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.wavs)
}

func serve(t *testing.T, h *Handler) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/voice/stream", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendCall(t *testing.T, conn *websocket.Conn, callID string, chunks int) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "connected", "protocol": "Call"}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"event":     "start",
		"streamSid": "MZ1",
		"start": map[string]any{
			"callSid":          callID,
			"tracks":           []string{"inbound"},
			"customParameters": map[string]string{"call_sid": callID, "language": "es"},
			"mediaFormat":      map[string]any{"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1},
		},
	}))
	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	for i := 0; i < chunks; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"event":     "media",
			"streamSid": "MZ1",
			"media":     map[string]string{"track": "inbound", "payload": payload},
		}))
	}
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "stop", "streamSid": "MZ1"}))
}

func newStore(t *testing.T, callID string) *session.Store {
	t.Helper()
	store := session.NewStore()
	_, err := store.Create(session.CallSession{ID: callID, CallerNumber: "+15550001111", State: session.StateConversation, Language: "es"})
	require.NoError(t, err)
	return store
}

func transcript(store *session.Store, callID string) []string {
	cs, err := store.Get(callID)
	if err != nil {
		return nil
	}
	return cs.Transcript
}

func TestLiveTranscriptsAreRecorded(t *testing.T) {
	store := newStore(t, "CA1")
	live := &fakeStreaming{}
	batch := &fakeBatch{}
	h := NewHandler(Config{Streaming: live, Batch: batch, Store: store}, nil, nil)

	sendCall(t, dial(t, serve(t, h)), "CA1", 2)

	require.Eventually(t, func() bool { return len(transcript(store, "CA1")) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"hello there", "hello there"}, transcript(store, "CA1"))
	assert.Equal(t, "es", live.opts.Language)
	assert.Equal(t, 8000, live.opts.SampleRate)
	require.Eventually(t, func() bool { return h.Registry().Active() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, batch.calls(), "batch fallback must not run when live transcription worked")
}

func TestFallsBackToBatchWhenProviderUnavailable(t *testing.T) {
	store := newStore(t, "CA2")
	batch := &fakeBatch{}
	h := NewHandler(Config{Streaming: &fakeStreaming{err: errors.New("dial refused")}, Batch: batch, Store: store}, nil, nil)

	sendCall(t, dial(t, serve(t, h)), "CA2", 3)

	require.Eventually(t, func() bool { return batch.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(transcript(store, "CA2")) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "buffered words", transcript(store, "CA2")[0])

	batch.mu.Lock()
	wav := batch.wavs[0]
	batch.mu.Unlock()
	assert.True(t, speech.IsWAV(wav))
	// Three 160 byte mu-law frames decode to 960 bytes of PCM.
	assert.Len(t, wav, 44+960)
	assert.Equal(t, "es", batch.lang)
}

func TestBufferIsCapped(t *testing.T) {
	batch := &fakeBatch{}
	h := NewHandler(Config{Batch: batch, MaxBuffer: 200}, nil, nil)

	sendCall(t, dial(t, serve(t, h)), "CA3", 5)

	require.Eventually(t, func() bool { return batch.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	batch.mu.Lock()
	defer batch.mu.Unlock()
	assert.Len(t, batch.wavs[0], 44+400)
}

func TestNoProvidersDiscardsAudio(t *testing.T) {
	store := newStore(t, "CA4")
	h := NewHandler(Config{Store: store}, nil, nil)

	sendCall(t, dial(t, serve(t, h)), "CA4", 2)

	require.Eventually(t, func() bool { return h.Registry().Active() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, transcript(store, "CA4"))
}

func TestStartFrameFallbacks(t *testing.T) {
	f, err := decodeFrame([]byte(`{"event":"start","streamSid":"MZ9","start":{"callSid":"CA9","mediaFormat":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "CA9", f.Start.callID())
	assert.Equal(t, 8000, f.Start.sampleRate())
	assert.Empty(t, f.Start.language())

	_, err = decodeFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestRegistryTracksStreams(t *testing.T) {
	r := NewRegistry()
	r.add(&stream{sid: "MZ2", callID: "CA2"})
	r.add(&stream{sid: "MZ1", callID: "CA1"})
	assert.Equal(t, []string{"CA1", "CA2"}, r.Calls())
	assert.Equal(t, 2, r.Active())
	r.remove("MZ1")
	assert.Equal(t, []string{"CA2"}, r.Calls())
}
