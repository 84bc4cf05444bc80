// Package config loads the medassist configuration and constructs the
// model-endpoint handles from it.
//
// Configuration is a single YAML file. Credential fields support $VAR
// and ${VAR} environment references. Every field has a default aimed
// at a local Ollama deployment, so an empty config is valid.
package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/xdh1129/medassist/pkg/agent"
	"github.com/xdh1129/medassist/pkg/gen"
)

// Config is the root configuration.
type Config struct {
	// Provider selects the model backend: "openai" (any
	// OpenAI-compatible endpoint, including Ollama) or "gemini".
	Provider string `yaml:"provider,omitzero"`

	// BaseURL of the OpenAI-compatible endpoint. Ignored for gemini.
	BaseURL string `yaml:"base_url,omitzero"`

	// APIKey may be a literal or an env reference like "$OLLAMA_API_KEY".
	APIKey string `yaml:"api_key,omitzero"`

	// VLMModel is the vision-capable model for the radiologist stage.
	VLMModel string `yaml:"vlm_model,omitzero"`

	// LLMModel is the text model for the doctor stage.
	LLMModel string `yaml:"llm_model,omitzero"`

	// TimeoutSeconds bounds every model request.
	TimeoutSeconds float64 `yaml:"timeout_seconds,omitzero"`

	// Listen is the HTTP listen address of the serve command.
	Listen string `yaml:"listen,omitzero"`
}

// Default mirrors the original deployment: two Ollama-served models
// behind one OpenAI-compatible endpoint.
func Default() *Config {
	return &Config{
		Provider:       "openai",
		BaseURL:        "http://ollama:11434/v1",
		APIKey:         "ollama",
		VLMModel:       "hf.co/unsloth/medgemma-27b-it-GGUF:Q4_K_M",
		LLMModel:       "llama3.1:latest",
		TimeoutSeconds: 180,
		Listen:         ":8000",
	}
}

// Load reads path and overlays it onto the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.APIKey = expandEnv(cfg.APIKey)
	return cfg, nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// Pipeline constructs the two model handles and the pipeline from the
// configuration. The handles are created once and shared read-only
// across runs.
func (c *Config) Pipeline(ctx context.Context) (*agent.Pipeline, error) {
	switch strings.ToLower(c.Provider) {
	case "", "openai":
		return c.openaiPipeline()
	case "gemini":
		return c.geminiPipeline(ctx)
	default:
		return nil, fmt.Errorf("unknown provider: %s", c.Provider)
	}
}

func (c *Config) openaiPipeline() (*agent.Pipeline, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for the openai provider")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: c.Timeout()}),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &agent.Pipeline{
		VLM: &gen.OpenAIGenerator{Client: &client, Model: c.VLMModel, UseSystemRole: true},
		LLM: &gen.OpenAIGenerator{Client: &client, Model: c.LLMModel, UseSystemRole: true},
	}, nil
}

func (c *Config) geminiPipeline(ctx context.Context) (*agent.Pipeline, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for the gemini provider")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     c.APIKey,
		HTTPClient: &http.Client{Timeout: c.Timeout()},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &agent.Pipeline{
		VLM: &gen.GeminiGenerator{Client: client, Model: c.VLMModel},
		LLM: &gen.GeminiGenerator{Client: client, Model: c.LLMModel},
	}, nil
}

// expandEnv resolves $VAR and ${VAR} references; literals pass through.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}
