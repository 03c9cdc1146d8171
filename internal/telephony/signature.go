package telephony

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"

	"callbridge/pkg/logger"
)

const signatureHeader = "X-Twilio-Signature"

// RequireTwilioSignature rejects webhooks whose X-Twilio-Signature does not
// match the auth token. publicURL is the externally visible base URL the
// carrier signs against; behind a proxy the local Host is not it. Media
// stream handshakes are GETs signed over the wss URL with no parameters, so
// mount them with WebsocketURL(publicURL).
func RequireTwilioSignature(authToken, publicURL string) gin.HandlerFunc {
	validator := client.NewRequestValidator(authToken)
	base := strings.TrimRight(publicURL, "/")

	return func(c *gin.Context) {
		sig := c.GetHeader(signatureHeader)
		if sig == "" {
			logger.FromGin(c).Warn("twilio signature missing")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		url := base + c.Request.URL.RequestURI()
		if base == "" {
			url = requestURL(c.Request)
		}
		if !validator.Validate(url, params, sig) {
			logger.FromGin(c).Warn("twilio signature invalid", "url", url)
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

func requestURL(r *http.Request) string {
	secure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	scheme := "http"
	switch {
	case isWebsocket(r) && secure:
		scheme = "wss"
	case isWebsocket(r):
		scheme = "ws"
	case secure:
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// WebsocketURL maps an http(s) base URL to the ws(s) URL the carrier signs
// media stream handshakes against.
func WebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
