package llm

import "callbridge/internal/config"

// FromConfig returns the configured backend, or Unavailable when the
// selected provider is missing what it needs. tokens may be nil unless the
// provider is "gateway".
func FromConfig(cfg config.LLMConfig, tokens TokenSource) Client {
	switch cfg.Provider {
	case "gateway":
		if tokens == nil || cfg.BaseURL == "" {
			return Unavailable{}
		}
		return NewGateway(GatewayConfig{BaseURL: cfg.BaseURL, SystemPrompt: cfg.SystemPrompt}, tokens)
	case "openai":
		if cfg.APIKey == "" {
			return Unavailable{}
		}
		return NewOpenAI(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
		})
	}
	return Unavailable{}
}
