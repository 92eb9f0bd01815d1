package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pulsekeeper/pulsekeeper/internal/domainerr"
)

var errUnavailable = domainerr.ErrModelUnavailable

// bedrockInvokeBody is the Anthropic-on-Bedrock Messages API request shape.
type bedrockInvokeBody struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Messages         []bedrockMessage   `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// bedrockResponse is the Anthropic-on-Bedrock Messages API response shape.
type bedrockResponse struct {
	Content []bedrockBlock `json:"content"`
	Usage   bedrockUsage   `json:"usage"`
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// BedrockCaller invokes Anthropic models on Amazon Bedrock via a
// SigV4-signed InvokeModel HTTP call.
type BedrockCaller struct {
	httpClient *http.Client
	signer     *signer
	baseURL    string // e.g. https://bedrock-runtime.us-east-1.amazonaws.com
}

// NewBedrockCaller builds a BedrockCaller. If endpoint is empty, the
// standard regional Bedrock runtime endpoint is used.
func NewBedrockCaller(region, accessKeyID, secretAccessKey, sessionToken, endpoint string) *BedrockCaller {
	base := endpoint
	if base == "" {
		base = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}
	return &BedrockCaller{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     newSigner(accessKeyID, secretAccessKey, sessionToken, region),
		baseURL:    base,
	}
}

// Probe sends a 1-token request to check the model responds (spec.md §4.7:
// "the configured model is tested by a 1-token probe").
func (b *BedrockCaller) Probe(ctx context.Context, model string) error {
	_, _, _, err := b.Invoke(ctx, model, "ping", 1)
	return err
}

// Invoke calls Bedrock's InvokeModel endpoint for model with prompt.
func (b *BedrockCaller) Invoke(ctx context.Context, model, prompt string, maxTokens int) (string, int64, int64, error) {
	body := bedrockInvokeBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []bedrockMessage{{Role: "user", Content: prompt}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshaling bedrock request: %w", err)
	}

	url := fmt.Sprintf("%s/model/%s/invoke", b.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, 0, fmt.Errorf("building bedrock request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Host = req.URL.Host
	b.signer.sign(req, payload)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: %v", errUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, 0, fmt.Errorf("reading bedrock response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, 0, fmt.Errorf("%w: bedrock returned %d: %s", errUnavailable, resp.StatusCode, string(respBody))
	}

	var parsed bedrockResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", 0, 0, fmt.Errorf("parsing bedrock response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return text, parsed.Usage.InputTokens, parsed.Usage.OutputTokens, nil
}
