package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Ensure BedrockClient implements CompletionProvider
var _ CompletionProvider = (*BedrockClient)(nil)

// BedrockClient wraps the AWS Bedrock Runtime client
type BedrockClient struct {
	client       *bedrockruntime.Client
	model        string
	maxNewTokens int
	timeout      time.Duration
}

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ClaudeRequest represents the request body for Claude models
type ClaudeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
	System           string    `json:"system,omitempty"`
	StopSequences    []string  `json:"stop_sequences,omitempty"`
}

// ClaudeResponse represents the response from Claude models
type ClaudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// completionSystemPrompt keeps chat models from wrapping their continuation
const completionSystemPrompt = "Continue the text exactly where it stops. Reply with the continuation only, without explanations or markdown fences."

// NewBedrockProvider creates a BedrockClient with AWS configuration from the environment
func NewBedrockProvider(ctx context.Context, cfg *ProviderConfig) (CompletionProvider, error) {
	region := cfg.Region
	if region == "" {
		region = getEnvOrDefault("AWS_REGION", "us-east-1")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, ErrAWSConfig(err)
	}

	model := cfg.Model
	if model == "" {
		model = ProviderBedrock.DefaultModel()
	}
	maxNew := cfg.MaxNewTokens
	if maxNew <= 0 {
		maxNew = 256
	}

	return &BedrockClient{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		model:        model,
		maxNewTokens: maxNew,
		timeout:      cfg.Timeout,
	}, nil
}

// Name returns the provider name
func (b *BedrockClient) Name() string {
	return "Bedrock"
}

// Complete sends the prompt as a single user turn and returns the reply text
func (b *BedrockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	maxTokens := req.MaxNewTokens
	if maxTokens == 0 {
		maxTokens = b.maxNewTokens
	}

	requestBody, err := json.Marshal(ClaudeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []Message{{Role: "user", Content: req.Prompt}},
		System:           completionSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		Body:        requestBody,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, ErrBedrockInvoke(err)
	}

	var response ClaudeResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var text string
	for _, content := range response.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	if req.ReturnFullText {
		text = req.Prompt + text
	}

	return &CompletionResult{
		Text:         text,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}
