// Package credentials isolates raw secrets from provider gateways. Gateways
// receive an availability boolean and, at call time, an opaque token handle;
// resolution policy (environment first, integration-token table fallback)
// lives here.
package credentials

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderVeo        = "veo"
	ProviderWan        = "wan"
	ProviderRunPod     = "runpod"
	ProviderElevenLabs = "elevenlabs"
	ProviderQwenTTS    = "qwen_tts"
	ProviderTikTok     = "tiktok"
	ProviderInstagram  = "instagram"
	ProviderFacebook   = "facebook"
)

// envVars maps provider names to the environment variables consulted, in
// order. Veo and the DashScope family share upstream keys.
var envVars = map[string][]string{
	ProviderGemini:     {"GEMINI_API_KEY"},
	ProviderOpenAI:     {"OPENAI_API_KEY"},
	ProviderVeo:        {"VEO_API_KEY", "GEMINI_API_KEY"},
	ProviderWan:        {"DASHSCOPE_API_KEY"},
	ProviderRunPod:     {"RUNPOD_API_KEY"},
	ProviderElevenLabs: {"ELEVENLABS_API_KEY"},
	ProviderQwenTTS:    {"DASHSCOPE_API_KEY"},
	ProviderTikTok:     {"TIKTOK_ACCESS_TOKEN"},
	ProviderInstagram:  {"INSTAGRAM_ACCESS_TOKEN"},
	ProviderFacebook:   {"FACEBOOK_ACCESS_TOKEN"},
}

// Known lists every provider name the source can resolve.
func Known() []string {
	return []string{
		ProviderGemini, ProviderOpenAI, ProviderVeo, ProviderWan,
		ProviderRunPod, ProviderElevenLabs, ProviderQwenTTS,
		ProviderTikTok, ProviderInstagram, ProviderFacebook,
	}
}

// Source supplies provider token handles.
type Source interface {
	Available(provider string) bool
	Token(ctx context.Context, provider string) (string, error)
}

// Static is an immutable Source resolved once at startup.
type Static map[string]string

func (s Static) Available(provider string) bool {
	return strings.TrimSpace(s[provider]) != ""
}

func (s Static) Token(ctx context.Context, provider string) (string, error) {
	return strings.TrimSpace(s[provider]), nil
}

var _ Source = (Static)(nil)

// Resolve builds a Static source for the given providers: environment
// variables win, the integration-token store fills the gaps. A nil store
// limits resolution to the environment. Store lookup failures leave the
// provider unavailable rather than aborting startup.
func Resolve(ctx context.Context, store *Store, logger zerolog.Logger, providers []string) Static {
	out := make(Static, len(providers))
	for _, provider := range providers {
		token := fromEnv(provider)
		if token == "" && store != nil {
			stored, err := store.Token(ctx, provider)
			if err != nil {
				logger.Warn().Str("provider", provider).Err(err).Msg("token store lookup failed")
			} else {
				token = stored
			}
		}
		if token != "" {
			out[provider] = token
		}
	}
	return out
}

func fromEnv(provider string) string {
	for _, key := range envVars[provider] {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
