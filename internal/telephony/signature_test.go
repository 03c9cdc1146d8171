package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func sign(token, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireTwilioSignature("secret", "https://calls.example.com/"))
	r.POST("/voice/incoming", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func signedRequest(sig string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/voice/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sig != "" {
		req.Header.Set(signatureHeader, sig)
	}
	return req
}

func TestRequireTwilioSignature(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}, "From": {"+15550001111"}}
	r := signedRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(sign("secret", "https://calls.example.com/voice/incoming", form), form))
	if w.Code != http.StatusOK {
		t.Fatalf("expected valid signature accepted, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(sign("wrong", "https://calls.example.com/voice/incoming", form), form))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected forged signature rejected, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest("", form))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected missing signature rejected, got %d", w.Code)
	}
}

func TestRequireTwilioSignatureOnStreamHandshake(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/voice/stream", RequireTwilioSignature("secret", WebsocketURL("https://calls.example.com")), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	handshake := func(sig string) int {
		req := httptest.NewRequest(http.MethodGet, "/voice/stream", nil)
		req.Header.Set("Upgrade", "websocket")
		if sig != "" {
			req.Header.Set(signatureHeader, sig)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := handshake(sign("secret", "wss://calls.example.com/voice/stream", nil)); code != http.StatusOK {
		t.Fatalf("expected signed handshake accepted, got %d", code)
	}
	if code := handshake(sign("secret", "https://calls.example.com/voice/stream", nil)); code != http.StatusForbidden {
		t.Fatalf("expected https-signed handshake rejected, got %d", code)
	}
	if code := handshake(""); code != http.StatusForbidden {
		t.Fatalf("expected unsigned handshake rejected, got %d", code)
	}
}

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"https://calls.example.com": "wss://calls.example.com",
		"http://localhost:8080":     "ws://localhost:8080",
		"":                          "",
	}
	for in, want := range cases {
		if got := WebsocketURL(in); got != want {
			t.Fatalf("WebsocketURL(%q) = %q, want %q", in, got, want)
		}
	}
}
