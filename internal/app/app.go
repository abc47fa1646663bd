// Package app wires configuration into a ready-to-use analysis stack for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"mealagent"
	"mealagent/brandcache"
	"mealagent/escalation"
	"mealagent/inference/bedrock"
	"mealagent/inference/ollama"
	"mealagent/orchestrator"
	"mealagent/retrospective"
	"mealagent/stages"
	"mealagent/storage"
	"mealagent/webhook"
)

type Config struct {
	Model      mealagent.ModelConfig
	Agent      mealagent.AgentConfig
	Escalation mealagent.EscalationConfig
	Server     mealagent.ServerConfig
}

// LoadConfig decodes every configuration block from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	for _, target := range []any{&cfg.Model, &cfg.Agent, &cfg.Escalation, &cfg.Server} {
		if err := envdecode.Decode(target); err != nil {
			return Config{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return cfg, nil
}

// App holds the long-lived pieces shared by every analysis in the process.
type App struct {
	Config   Config
	Client   mealagent.InferenceClient
	Cache    *brandcache.Cache
	Policy   *escalation.Policy
	Registry *stages.Registry
	Webhook  *webhook.Client
	S3       *s3.Client

	closers []func() error
}

// New builds the stack. The vocabulary path, when set, overrides the built-in keyword lists.
func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{Config: cfg, Registry: stages.NewRegistry()}

	vocab := escalation.DefaultVocabulary()
	if cfg.Agent.VocabularyPath != "" {
		v, err := loadVocabulary(cfg.Agent.VocabularyPath)
		if err != nil {
			return nil, err
		}
		vocab = v
		slog.Info("SETUP: Vocabulary loaded", "path", cfg.Agent.VocabularyPath, "brands", len(v.Brands))
	}
	a.Policy = escalation.NewPolicy(escalation.ThresholdsFromConfig(cfg.Escalation), vocab)

	var awsCfg *aws.Config
	if cfg.Model.Provider == "bedrock" || cfg.Agent.ImageBucket != "" {
		c, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(cfg.Agent.InferenceMaxAttempts))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		awsCfg = &c
		a.S3 = s3.NewFromConfig(c)
	}

	switch cfg.Model.Provider {
	case "bedrock":
		llm := bedrock.NewLLMClient(bedrockruntime.NewFromConfig(*awsCfg), bedrock.LLMOptions{
			ModelID:     cfg.Model.ModelID,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
			TopP:        cfg.Model.TopP,
			Timeout:     cfg.Agent.InferenceTimeout,
		})
		if cfg.Agent.ImageBucket != "" {
			llm = llm.WithImageStore(storage.NewS3ImageStore(a.S3, cfg.Agent.ImageBucket, cfg.Agent.ImagePrefix, cfg.Agent.ImageTTL))
		}
		a.Client = llm
		slog.Info("SETUP: Bedrock client ready", "model", cfg.Model.ModelID, "image_bucket", cfg.Agent.ImageBucket)
	case "ollama":
		llm, err := ollama.NewClient(ollama.ClientOpts{
			BaseEndpoint: cfg.Agent.OllamaEndpoint,
			ModelID:      cfg.Agent.OllamaModel,
			Timeout:      cfg.Agent.InferenceTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.Client = llm
		slog.Info("SETUP: Ollama client ready", "endpoint", cfg.Agent.OllamaEndpoint, "model", cfg.Agent.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}

	var cacheOpts []brandcache.Option
	if cfg.Agent.BrandCachePath != "" {
		store, err := brandcache.NewSQLiteStore(cfg.Agent.BrandCachePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		cacheOpts = append(cacheOpts, brandcache.WithStore(store))
	}
	a.Cache = brandcache.New(cfg.Agent.BrandCacheTTL, cacheOpts...)
	if err := a.Cache.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load brand cache: %w", err)
	}

	if cfg.Agent.ResultWebhookURL != "" {
		a.Webhook = webhook.NewClient(cfg.Agent.ResultWebhookURL, http.DefaultClient)
	}
	return a, nil
}

// Orchestrator returns a fresh orchestrator sharing the process-wide cache.
func (a *App) Orchestrator(logger mealagent.StageLogger) *orchestrator.Orchestrator {
	opts := orchestrator.Options{
		Policy:            a.Policy,
		Registry:          a.Registry,
		Cache:             a.Cache,
		Logger:            logger,
		ConfidenceBump:    a.Config.Escalation.ConfidenceBump,
		ConfidenceBumpCap: a.Config.Escalation.ConfidenceBumpCap,
	}
	if a.Webhook != nil {
		opts.Publisher = a.Webhook
	}
	return orchestrator.New(a.Client, opts)
}

func (a *App) Retrospective() *retrospective.Parser {
	return retrospective.New(a.Client, retrospective.Options{
		Registry:     a.Registry,
		Timeout:      a.Config.Agent.RetroTimeout,
		WindowOffset: a.Config.Agent.RetroWindowOffset,
	})
}

// OpenImage resolves a local path or an s3:// reference.
func (a *App) OpenImage(ref string) (storage.ImageSource, error) {
	if a.S3 == nil {
		return storage.Open(ref, nil)
	}
	return storage.Open(ref, a.S3)
}

// OpenRemoteImage only accepts s3:// references, for callers that must not read local files.
func (a *App) OpenRemoteImage(ref string) (storage.ImageSource, error) {
	if !strings.HasPrefix(ref, "s3://") {
		return nil, fmt.Errorf("only s3:// image references are accepted, got %q", ref)
	}
	return a.OpenImage(ref)
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadVocabulary(path string) (escalation.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return escalation.Vocabulary{}, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()
	return escalation.LoadVocabulary(f)
}
