package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration required by the api and drainer processes.
// Values come from an optional YAML file overlaid by CALLBRIDGE_* env vars.
// No business logic should depend on raw environment variables.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Security   SecurityConfig   `mapstructure:"security"`
	Menu       MenuConfig       `mapstructure:"menu"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	VoiceNotes VoiceNotesConfig `mapstructure:"voice_notes"`
	Twilio     TwilioConfig     `mapstructure:"twilio"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type AppConfig struct {
	Env        string        `mapstructure:"env"`
	Port       int           `mapstructure:"port"`
	PublicURL  string        `mapstructure:"public_url"`
	DataDir    string        `mapstructure:"data_dir"`
	LogFile    string        `mapstructure:"log_file"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type SecurityConfig struct {
	Allowlist      []AllowlistEntry `mapstructure:"allowlist"`
	MaxPinAttempts int              `mapstructure:"max_pin_attempts"`
	PinLength      int              `mapstructure:"pin_length"`
	// LockoutMinutes is accepted for compatibility; exhaustion ends the call
	// and the caller may call again.
	LockoutMinutes int             `mapstructure:"lockout_minutes"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type AllowlistEntry struct {
	Number string `mapstructure:"number" validate:"required,e164"`
	PIN    string `mapstructure:"pin" validate:"required,numeric,min=4,max=12"`
	Name   string `mapstructure:"name"`
}

type RateLimitConfig struct {
	Window   time.Duration `mapstructure:"window"`
	MaxCalls int           `mapstructure:"max_calls"`
}

type MenuConfig struct {
	DefaultLanguage string           `mapstructure:"default_language"`
	TimeoutSeconds  int              `mapstructure:"timeout_seconds"`
	Languages       []LanguageOption `mapstructure:"languages"`
	VoiceNote       VoiceNoteOption  `mapstructure:"voice_note"`
}

type LanguageOption struct {
	Key          string `mapstructure:"key" validate:"required,len=1,numeric"`
	Code         string `mapstructure:"code" validate:"required,min=2,max=5"`
	Voice        string `mapstructure:"voice"`
	SpeechLocale string `mapstructure:"speech_locale"`
	Prompt       string `mapstructure:"prompt" validate:"required"`
}

type VoiceNoteOption struct {
	Key    string `mapstructure:"key" validate:"omitempty,len=1,numeric"`
	Voice  string `mapstructure:"voice"`
	Prompt string `mapstructure:"prompt"`
}

type SpeechConfig struct {
	// Streaming selects the live provider: "deepgram" or "" (none).
	Streaming string `mapstructure:"streaming"`
	// Batch selects the recording provider: "whisper", "deepgram" or "" (none).
	Batch    string         `mapstructure:"batch"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Deepgram DeepgramConfig `mapstructure:"deepgram"`
	Whisper  WhisperConfig  `mapstructure:"whisper"`
}

type DeepgramConfig struct {
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	StreamURL string `mapstructure:"stream_url"`
	Model     string `mapstructure:"model"`
}

type WhisperConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "gateway".
	Provider      string        `mapstructure:"provider"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	SystemPrompt  string        `mapstructure:"system_prompt"`
	FirstTimeout  time.Duration `mapstructure:"first_timeout"`
	RetryTimeout  time.Duration `mapstructure:"retry_timeout"`
	AsyncTimeout  time.Duration `mapstructure:"async_timeout"`
	MaxReplyChars int           `mapstructure:"max_reply_chars"`
}

type EscalationConfig struct {
	// Method is one of gateway, telegram, sms, webhook. Empty disables delivery.
	Method       string         `mapstructure:"method"`
	QueueDir     string         `mapstructure:"queue_dir"`
	PollInterval time.Duration  `mapstructure:"poll_interval"`
	Gateway      GatewayConfig  `mapstructure:"gateway"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
	SMS          SMSConfig      `mapstructure:"sms"`
	Webhook      WebhookConfig  `mapstructure:"webhook"`
}

type GatewayConfig struct {
	URL string `mapstructure:"url"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	BaseURL  string `mapstructure:"base_url"`
}

type SMSConfig struct {
	From string `mapstructure:"from"`
	// To overrides the caller number as recipient when set.
	To string `mapstructure:"to"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type VoiceNotesConfig struct {
	Dir                string `mapstructure:"dir"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	// Budget bounds download plus transcription so the confirmation reaches
	// the carrier inside its webhook timeout.
	Budget time.Duration `mapstructure:"budget"`
}

type TwilioConfig struct {
	AccountSID         string `mapstructure:"account_sid"`
	AuthToken          string `mapstructure:"auth_token"`
	ValidateSignatures bool   `mapstructure:"validate_signatures"`
	// RecordingHosts are the only hosts recordings are downloaded from.
	RecordingHosts []string `mapstructure:"recording_hosts"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
}

const envPrefix = "CALLBRIDGE"

// Load reads path (may be empty) and env overrides, then normalizes.
// Problems never fail the load: each is reported as a warning and a default is used.
func Load(path string) (Config, []string) {
	var warnings []string

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				warnings = append(warnings, fmt.Sprintf("config file %s not found, using defaults and env", path))
			} else {
				warnings = append(warnings, fmt.Sprintf("config file %s unreadable, using defaults and env: %v", path, err))
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		warnings = append(warnings, fmt.Sprintf("config decode failed, using defaults: %v", err))
		c = Config{}
	}

	warnings = append(warnings, c.Normalize()...)
	return c, warnings
}

func setDefaults(v *viper.Viper) {
	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("app.env", "local")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.public_url", "")
	v.SetDefault("app.data_dir", "data")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.session_ttl", "30m")

	v.SetDefault("security.max_pin_attempts", 3)
	v.SetDefault("security.pin_length", 0)
	v.SetDefault("security.lockout_minutes", 0)
	v.SetDefault("security.rate_limit.window", "1h")
	v.SetDefault("security.rate_limit.max_calls", 10)

	v.SetDefault("menu.default_language", "en")
	v.SetDefault("menu.timeout_seconds", 6)

	v.SetDefault("speech.streaming", "")
	v.SetDefault("speech.batch", "")
	v.SetDefault("speech.timeout", "30s")
	v.SetDefault("speech.deepgram.api_key", "")
	v.SetDefault("speech.deepgram.base_url", "https://api.deepgram.com")
	v.SetDefault("speech.deepgram.stream_url", "wss://api.deepgram.com/v1/listen")
	v.SetDefault("speech.deepgram.model", "nova-2-phonecall")
	v.SetDefault("speech.whisper.api_key", "")
	v.SetDefault("speech.whisper.base_url", "https://api.openai.com/v1")
	v.SetDefault("speech.whisper.model", "whisper-1")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.first_timeout", "5s")
	v.SetDefault("llm.retry_timeout", "8s")
	v.SetDefault("llm.async_timeout", "90s")
	v.SetDefault("llm.max_reply_chars", 600)

	v.SetDefault("escalation.method", "")
	v.SetDefault("escalation.queue_dir", "")
	v.SetDefault("escalation.poll_interval", "30s")
	v.SetDefault("escalation.gateway.url", "")
	v.SetDefault("escalation.telegram.bot_token", "")
	v.SetDefault("escalation.telegram.chat_id", "")
	v.SetDefault("escalation.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("escalation.sms.from", "")
	v.SetDefault("escalation.sms.to", "")
	v.SetDefault("escalation.webhook.url", "")

	v.SetDefault("voice_notes.dir", "")
	v.SetDefault("voice_notes.max_duration_seconds", 120)
	v.SetDefault("voice_notes.budget", "10s")

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.validate_signatures", false)
	v.SetDefault("twilio.recording_hosts", []string{"api.twilio.com"})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "callbridge")
	v.SetDefault("auth.jwt_audience", "callbridge-operators")
	v.SetDefault("auth.token_ttl", "1h")
}

// Normalize applies defaults in place and returns one warning per problem found.
func (c *Config) Normalize() []string {
	var warns []string
	warn := func(format string, args ...any) {
		warns = append(warns, fmt.Sprintf(format, args...))
	}
	validate := validator.New()

	if c.App.Env == "" {
		c.App.Env = "local"
	} else if !isValidEnv(c.App.Env) {
		warn("app.env must be one of local, dev, staging, production, got %q; using local", c.App.Env)
		c.App.Env = "local"
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		warn("app.port must be a valid port, got %d; using 8080", c.App.Port)
		c.App.Port = 8080
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}
	if c.App.SessionTTL <= 0 {
		c.App.SessionTTL = 30 * time.Minute
	}
	if c.App.PublicURL != "" {
		if u, err := url.Parse(c.App.PublicURL); err != nil || u.Host == "" {
			warn("app.public_url %q is not an absolute URL; live streaming disabled", c.App.PublicURL)
			c.App.PublicURL = ""
		}
	}

	// Allowlist: invalid entries are dropped, duplicates keep the first entry.
	seen := make(map[string]bool)
	kept := c.Security.Allowlist[:0]
	for i, e := range c.Security.Allowlist {
		e.Number = strings.TrimSpace(e.Number)
		e.PIN = strings.TrimSpace(e.PIN)
		if err := validate.Struct(e); err != nil {
			warn("security.allowlist[%d] ignored: %v", i, err)
			continue
		}
		if seen[e.Number] {
			warn("security.allowlist[%d] duplicates %s; first entry wins", i, e.Number)
			continue
		}
		seen[e.Number] = true
		kept = append(kept, e)
	}
	c.Security.Allowlist = kept
	if len(c.Security.Allowlist) == 0 {
		warn("security.allowlist is empty; every caller will be rejected")
	}
	if c.Security.MaxPinAttempts <= 0 {
		c.Security.MaxPinAttempts = 3
	}
	if c.Security.PinLength <= 0 {
		c.Security.PinLength = 6
		if len(c.Security.Allowlist) > 0 {
			c.Security.PinLength = len(c.Security.Allowlist[0].PIN)
		}
	}
	for _, e := range c.Security.Allowlist {
		if len(e.PIN) != c.Security.PinLength {
			warn("pin for %s has %d digits but security.pin_length is %d", e.Number, len(e.PIN), c.Security.PinLength)
		}
	}
	if c.Security.LockoutMinutes > 0 {
		warn("security.lockout_minutes is accepted but not enforced; exhausted PIN attempts end the call")
	}
	if c.Security.RateLimit.Window <= 0 {
		c.Security.RateLimit.Window = time.Hour
	}
	if c.Security.RateLimit.MaxCalls <= 0 {
		c.Security.RateLimit.MaxCalls = 10
	}

	c.normalizeMenu(validate, warn)

	c.Speech.Streaming = strings.ToLower(strings.TrimSpace(c.Speech.Streaming))
	c.Speech.Batch = strings.ToLower(strings.TrimSpace(c.Speech.Batch))
	if c.Speech.Timeout <= 0 {
		c.Speech.Timeout = 30 * time.Second
	}
	switch c.Speech.Streaming {
	case "":
	case "deepgram":
		if c.Speech.Deepgram.APIKey == "" {
			warn("speech.streaming is deepgram but speech.deepgram.api_key is empty; live transcription disabled")
			c.Speech.Streaming = ""
		}
	default:
		warn("speech.streaming %q is not supported; live transcription disabled", c.Speech.Streaming)
		c.Speech.Streaming = ""
	}
	switch c.Speech.Batch {
	case "":
		warn("speech.batch is not set; voice notes will be stored untranscribed")
	case "deepgram":
		if c.Speech.Deepgram.APIKey == "" {
			warn("speech.batch is deepgram but speech.deepgram.api_key is empty; transcription disabled")
			c.Speech.Batch = ""
		}
	case "whisper":
		if c.Speech.Whisper.APIKey == "" {
			warn("speech.batch is whisper but speech.whisper.api_key is empty; transcription disabled")
			c.Speech.Batch = ""
		}
	default:
		warn("speech.batch %q is not supported; transcription disabled", c.Speech.Batch)
		c.Speech.Batch = ""
	}

	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			warn("llm.api_key is empty; conversation replies will fail over to the generic apology")
		}
	case "gateway":
		if c.LLM.BaseURL == "" {
			warn("llm.provider is gateway but llm.base_url is empty; conversation replies will fail over to the generic apology")
		}
	default:
		warn("llm.provider %q is not supported; using openai", c.LLM.Provider)
		c.LLM.Provider = "openai"
	}
	if c.LLM.FirstTimeout <= 0 {
		c.LLM.FirstTimeout = 5 * time.Second
	}
	if c.LLM.RetryTimeout <= 0 {
		c.LLM.RetryTimeout = 8 * time.Second
	}
	if c.LLM.AsyncTimeout <= 0 {
		c.LLM.AsyncTimeout = 90 * time.Second
	}
	if c.LLM.MaxReplyChars <= 0 {
		c.LLM.MaxReplyChars = 600
	}

	c.Escalation.Method = strings.ToLower(strings.TrimSpace(c.Escalation.Method))
	if c.Escalation.QueueDir == "" {
		c.Escalation.QueueDir = c.App.DataDir + "/queue"
	}
	if c.Escalation.PollInterval <= 0 {
		c.Escalation.PollInterval = 30 * time.Second
	}
	switch c.Escalation.Method {
	case "":
		warn("escalation.method is not set; queued requests will be processed but not delivered")
	case "gateway":
		if c.Escalation.Gateway.URL == "" || c.Auth.JWTSecret == "" {
			warn("escalation gateway needs escalation.gateway.url and auth.jwt_secret; delivery disabled")
			c.Escalation.Method = ""
		}
	case "telegram":
		if c.Escalation.Telegram.BotToken == "" {
			warn("escalation.telegram.bot_token is empty; delivery disabled")
			c.Escalation.Method = ""
		}
	case "sms":
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Escalation.SMS.From == "" {
			warn("escalation sms needs twilio credentials and escalation.sms.from; delivery disabled")
			c.Escalation.Method = ""
		}
	case "webhook":
		if c.Escalation.Webhook.URL == "" {
			warn("escalation.webhook.url is empty; delivery disabled")
			c.Escalation.Method = ""
		}
	default:
		warn("escalation.method %q is not supported; delivery disabled", c.Escalation.Method)
		c.Escalation.Method = ""
	}

	if c.VoiceNotes.Dir == "" {
		c.VoiceNotes.Dir = c.App.DataDir + "/voice-notes"
	}
	if c.VoiceNotes.MaxDurationSeconds <= 0 {
		c.VoiceNotes.MaxDurationSeconds = 120
	}
	if c.VoiceNotes.Budget > 14*time.Second {
		warn("voice_notes.budget %s exceeds the carrier webhook timeout; using 10s", c.VoiceNotes.Budget)
		c.VoiceNotes.Budget = 0
	}
	if c.VoiceNotes.Budget <= 0 {
		c.VoiceNotes.Budget = 10 * time.Second
	}
	if len(c.Twilio.RecordingHosts) == 0 {
		c.Twilio.RecordingHosts = []string{"api.twilio.com"}
	}

	if c.Twilio.ValidateSignatures && c.Twilio.AuthToken == "" {
		warn("twilio.validate_signatures needs twilio.auth_token; signature checks disabled")
		c.Twilio.ValidateSignatures = false
	}

	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.JWTSecret == "" {
		warn("auth.jwt_secret is empty; admin API disabled")
	}

	return warns
}

func (c *Config) normalizeMenu(validate *validator.Validate, warn func(string, ...any)) {
	if c.Menu.TimeoutSeconds <= 0 {
		c.Menu.TimeoutSeconds = 6
	}

	keys := make(map[string]bool)
	kept := c.Menu.Languages[:0]
	for i, l := range c.Menu.Languages {
		l.Code = strings.ToLower(strings.TrimSpace(l.Code))
		if err := validate.Struct(l); err != nil {
			warn("menu.languages[%d] ignored: %v", i, err)
			continue
		}
		if keys[l.Key] {
			warn("menu.languages[%d] reuses key %s; first entry wins", i, l.Key)
			continue
		}
		keys[l.Key] = true
		kept = append(kept, l)
	}
	c.Menu.Languages = kept
	if len(c.Menu.Languages) == 0 {
		c.Menu.Languages = DefaultLanguages()
		for _, l := range c.Menu.Languages {
			keys[l.Key] = true
		}
	}

	if err := validate.Struct(c.Menu.VoiceNote); err != nil {
		warn("menu.voice_note ignored: %v", err)
		c.Menu.VoiceNote = VoiceNoteOption{}
	}
	if c.Menu.VoiceNote.Key == "" {
		c.Menu.VoiceNote.Key = "9"
	}
	if c.Menu.VoiceNote.Prompt == "" {
		c.Menu.VoiceNote.Prompt = "To leave a voice note, press 9."
	}
	if keys[c.Menu.VoiceNote.Key] {
		warn("menu.voice_note.key %s collides with a language key; the voice note option wins", c.Menu.VoiceNote.Key)
	}

	c.Menu.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Menu.DefaultLanguage))
	if c.Menu.DefaultLanguage == "" || c.Language(c.Menu.DefaultLanguage) == nil {
		if c.Menu.DefaultLanguage != "" {
			warn("menu.default_language %q is not a configured language; using %s", c.Menu.DefaultLanguage, c.Menu.Languages[0].Code)
		}
		c.Menu.DefaultLanguage = c.Menu.Languages[0].Code
	}
}

// DefaultLanguages is the menu used when none is configured.
func DefaultLanguages() []LanguageOption {
	return []LanguageOption{
		{Key: "1", Code: "en", Voice: "Polly.Joanna", SpeechLocale: "en-US", Prompt: "For English, press 1."},
		{Key: "2", Code: "es", Voice: "Polly.Lupe", SpeechLocale: "es-US", Prompt: "Para español, oprima 2."},
	}
}

// Language returns the configured option for code, or nil.
func (c Config) Language(code string) *LanguageOption {
	for i := range c.Menu.Languages {
		if c.Menu.Languages[i].Code == code {
			return &c.Menu.Languages[i]
		}
	}
	return nil
}

// DestinationHint is the recipient recorded on queued entries for the
// configured delivery channel, or "" to let the channel decide.
func (e EscalationConfig) DestinationHint() string {
	switch e.Method {
	case "telegram":
		return e.Telegram.ChatID
	case "sms":
		return e.SMS.To
	default:
		return ""
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StreamURL is the websocket URL the carrier connects media streams to,
// or "" when no public URL is configured.
func (c Config) StreamURL() string {
	if c.App.PublicURL == "" {
		return ""
	}
	u, err := url.Parse(c.App.PublicURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/voice/stream"
	return u.String()
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}
