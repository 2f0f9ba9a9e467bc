package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/oktareact/core/pkg/config"
)

// vertexGateway implements Gateway against the Vertex AI generateContent
// REST endpoint using net/http directly. No Vertex AI Go SDK appears
// anywhere in the retrieval pack, so this driver is the one place in the
// Chat Model Gateway built on the standard library rather than a vendor
// SDK; see DESIGN.md for the justification.
type vertexGateway struct {
	httpClient   *http.Client
	project      string
	location     string
	apiKey       string
	reasoning    config.ProfileConfig
	coding       config.ProfileConfig
	customHeader map[string]string
}

// NewVertexGateway builds a Gateway against Vertex AI's generateContent
// REST API, authenticated with an API key (ADC/OAuth token exchange is out
// of scope; operators supply a Vertex API key via reasoning.api_key_env).
func NewVertexGateway(llmCfg *config.LLMConfig, apiKey string) (Gateway, error) {
	project := os.Getenv(llmCfg.Reasoning.ProjectEnv)
	location := os.Getenv(llmCfg.Reasoning.LocationEnv)
	if project == "" || location == "" {
		return nil, fmt.Errorf("llm: vertex_ai requires %s and %s to be set", llmCfg.Reasoning.ProjectEnv, llmCfg.Reasoning.LocationEnv)
	}
	return &vertexGateway{
		httpClient:   &http.Client{},
		project:      project,
		location:     location,
		apiKey:       apiKey,
		reasoning:    llmCfg.Reasoning,
		coding:       llmCfg.Coding,
		customHeader: llmCfg.CustomHTTPHeaders,
	}, nil
}

func (g *vertexGateway) profileConfig(profile string) config.ProfileConfig {
	if profile == string(config.ProfileCoding) {
		return g.coding
	}
	return g.reasoning
}

type vertexContent struct {
	Role  string       `json:"role"`
	Parts []vertexPart `json:"parts"`
}

type vertexPart struct {
	Text string `json:"text,omitempty"`
}

type vertexRequest struct {
	Contents []vertexContent `json:"contents"`
}

type vertexCandidate struct {
	Content vertexContent `json:"content"`
}

type vertexUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type vertexResponse struct {
	Candidates    []vertexCandidate `json:"candidates"`
	UsageMetadata vertexUsage       `json:"usageMetadata"`
}

func (g *vertexGateway) Generate(ctx context.Context, input *GenerateInput) (<-chan Chunk, error) {
	profile := g.profileConfig(input.Profile)
	if profile.Model == "" {
		return nil, fmt.Errorf("llm: no model configured for profile %q", input.Profile)
	}

	contents := make([]vertexContent, 0, len(input.Messages))
	for _, m := range input.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, vertexContent{Role: role, Parts: []vertexPart{{Text: m.Content}}})
	}

	url := fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		g.location, g.project, g.location, profile.Model,
	)

	body, err := json.Marshal(vertexRequest{Contents: contents})
	if err != nil {
		return nil, fmt.Errorf("llm: encoding vertex request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: building vertex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	for k, v := range g.customHeader {
		req.Header.Set(k, v)
	}

	out := make(chan Chunk, 4)
	go func() {
		defer close(out)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			out <- &ErrorChunk{Message: err.Error(), Retryable: true}
			return
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			out <- &ErrorChunk{Message: err.Error()}
			return
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			out <- &ErrorChunk{Message: string(raw), Retryable: true}
			return
		}
		if resp.StatusCode != http.StatusOK {
			out <- &ErrorChunk{Message: fmt.Sprintf("vertex ai returned %d: %s", resp.StatusCode, raw)}
			return
		}

		var parsed vertexResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			out <- &ErrorChunk{Message: fmt.Sprintf("decoding vertex response: %v", err)}
			return
		}
		if len(parsed.Candidates) == 0 {
			out <- &ErrorChunk{Message: "vertex ai returned no candidates"}
			return
		}

		for _, part := range parsed.Candidates[0].Content.Parts {
			if part.Text != "" {
				out <- &TextChunk{Content: part.Text}
			}
		}

		out <- &UsageChunk{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
		}
	}()

	return out, nil
}

func (g *vertexGateway) Close() error { return nil }
