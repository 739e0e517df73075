package config

import (
	"context"
	"strings"

	"career-agent/internal/integrations/paramstore"
)

// CredentialParam is the Parameter Store name holding the provider's key.
func (c LLMConfig) CredentialParam() string {
	prefix := strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	if prefix == "" {
		return ""
	}
	if c.Provider == ProviderOpenAI {
		return prefix + "/open-ai-token"
	}
	return prefix + "/gemini-api-key"
}

// ResolveAPIKey returns the key for the configured provider. A key set
// directly wins; otherwise it is fetched through getter when a parameter
// prefix is configured. An empty key with a nil error means no credential
// is configured.
func (c LLMConfig) ResolveAPIKey(ctx context.Context, getter paramstore.Getter) (string, error) {
	key := c.GeminiAPIKey
	if c.Provider == ProviderOpenAI {
		key = c.OpenAIAPIKey
	}
	if key = strings.TrimSpace(key); key != "" {
		return key, nil
	}

	name := c.CredentialParam()
	if name == "" || getter == nil {
		return "", nil
	}
	return paramstore.FetchToken(ctx, getter, name)
}
