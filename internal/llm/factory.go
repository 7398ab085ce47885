package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/darkking4096/odonto/internal/config"
	"github.com/darkking4096/odonto/pkg/logging"
)

// Provider names accepted by AI_PROVIDER / AI_FALLBACK_PROVIDER.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// ErrNoProvider indicates the configuration names no usable provider. It is
// a startup failure, not a per-turn condition.
var ErrNoProvider = errors.New("llm: no completion provider configured")

// NewFromConfig builds the configured completion client, wrapping it with
// the fallback provider when one is set.
func NewFromConfig(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (Client, string, error) {
	primary, model, err := newProvider(ctx, cfg, cfg.AIProvider)
	if err != nil {
		return nil, "", err
	}

	if cfg.AIFallbackProvider == "" || cfg.AIFallbackProvider == cfg.AIProvider {
		return primary, model, nil
	}

	fallback, _, err := newProvider(ctx, cfg, cfg.AIFallbackProvider)
	if err != nil {
		logger.Warn("fallback provider unavailable, continuing with primary only",
			"provider", cfg.AIFallbackProvider,
			"error", err.Error(),
		)
		return primary, model, nil
	}
	return NewFallbackClient(primary, fallback, logger), model, nil
}

func newProvider(ctx context.Context, cfg *appconfig.Config, name string) (Client, string, error) {
	switch name {
	case ProviderAnthropic:
		loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
			loaders = append(loaders, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
		if err != nil {
			return nil, "", fmt.Errorf("llm: aws config: %w", err)
		}
		return NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg)), cfg.BedrockModelID, nil

	case ProviderOpenAI:
		client, err := NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.OpenAIModel, nil

	case ProviderGoogle:
		client, err := NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.GoogleModel)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.GoogleModel, nil

	case "":
		return nil, "", ErrNoProvider

	default:
		return nil, "", fmt.Errorf("llm: unknown provider %q", name)
	}
}
