package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini is the reasoning service used for replies and scratches
type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
}

var _ Gemini = (*GeminiClient)(nil)

type geminiConfig struct {
	clientConfig    genai.ClientConfig
	generativeModel string
}

type GeminiOption func(*geminiConfig)

func WithGenerativeModel(model string) GeminiOption {
	return func(c *geminiConfig) {
		c.generativeModel = model
	}
}

// WithAPIKey selects the Gemini Developer API backend
func WithAPIKey(apiKey string) GeminiOption {
	return func(c *geminiConfig) {
		c.clientConfig.APIKey = apiKey
		c.clientConfig.Backend = genai.BackendGeminiAPI
	}
}

// WithVertexAI selects the Vertex AI backend
func WithVertexAI(projectID, location string) GeminiOption {
	return func(c *geminiConfig) {
		c.clientConfig.Project = projectID
		c.clientConfig.Location = location
		c.clientConfig.Backend = genai.BackendVertexAI
	}
}

func NewGemini(ctx context.Context, opts ...GeminiOption) (*GeminiClient, error) {
	cfg := &geminiConfig{
		generativeModel: "gemini-2.5-flash",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch cfg.clientConfig.Backend {
	case genai.BackendGeminiAPI:
		if cfg.clientConfig.APIKey == "" {
			return nil, goerr.New("gemini api key is required")
		}
	case genai.BackendVertexAI:
		if cfg.clientConfig.Project == "" || cfg.clientConfig.Location == "" {
			return nil, goerr.New("vertex ai project and location are required")
		}
	default:
		return nil, goerr.New("either gemini api key or vertex ai project is required")
	}

	client, err := genai.NewClient(ctx, &cfg.clientConfig)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("backend", cfg.clientConfig.Backend))
	}

	return &GeminiClient{
		client:          client,
		generativeModel: cfg.generativeModel,
	}, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}
