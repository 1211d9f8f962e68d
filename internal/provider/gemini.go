// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/streamchat/internal/model"
)

// =============================================================================
// GEMINI CLIENT
// =============================================================================

// DefaultGeminiBaseURL is the Google generative language endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultGeminiModel is used when the credential names no model.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiClient talks to Google-style streamGenerateContent endpoints.
type GeminiClient struct {
	httpClient   *http.Client
	streamClient *http.Client
}

// NewGeminiClient creates a client backed by the shared HTTP clients.
func NewGeminiClient() *GeminiClient {
	return &GeminiClient{
		httpClient:   sharedClient,
		streamClient: sharedStreamingClient,
	}
}

// geminiPart is one content fragment.
type geminiPart struct {
	Text string `json:"text"`
}

// geminiContent is one wire-format turn.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiRequest is the streamGenerateContent request body.
type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiGenCfg struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// geminiChunk is one streamed SSE event.
type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

func (c *geminiChunk) text() string {
	if len(c.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func (c *geminiChunk) finishReason() string {
	if len(c.Candidates) > 0 {
		return c.Candidates[0].FinishReason
	}
	return ""
}

// buildContents converts a Request into wire turns. The prompt is always the
// final user turn and never appears in the history portion.
func buildContents(req Request) []geminiContent {
	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := "user"
		if turn.Role == model.RoleModel {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Text}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: req.Prompt}},
	})
	return contents
}

func (c *GeminiClient) baseURL(cred Credential) string {
	if cred.BaseURL != "" {
		return strings.TrimRight(cred.BaseURL, "/")
	}
	return DefaultGeminiBaseURL
}

// =============================================================================
// STREAMING
// =============================================================================

// StreamChat performs a streaming generateContent call. onChunk receives the
// cumulative text after every event. Cancellation returns an error
// satisfying ErrAborted with no further callbacks.
func (c *GeminiClient) StreamChat(ctx context.Context, cred Credential, req Request, onChunk ChunkFunc) (*Result, error) {
	start := time.Now()
	modelName := resolveModel(cred, DefaultGeminiModel)

	body := geminiRequest{
		Contents: buildContents(req),
		GenerationConfig: &geminiGenCfg{
			Temperature:     req.Params.Temperature,
			TopP:            req.Params.TopP,
			TopK:            req.Params.TopK,
			MaxOutputTokens: req.Params.MaxTokens,
		},
	}
	if req.Instruction != "" {
		body.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.Instruction}},
		}
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL(cred), modelName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-goog-api-key", cred.Key)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortErr(ctx.Err())
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxSSEChunkSize))
		return nil, apiErrorFromResponse(KindGemini, resp.StatusCode, errBody)
	}

	var accumulated strings.Builder
	var finishReason, seenModel string

	scanErr := scanSSE(ctx, resp.Body, func(data []byte) (bool, error) {
		var chunk geminiChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return false, nil
		}
		if chunk.ModelVersion != "" {
			seenModel = chunk.ModelVersion
		}
		if text := chunk.text(); text != "" {
			accumulated.WriteString(text)
			onChunk(accumulated.String())
		}
		if fr := chunk.finishReason(); fr != "" {
			finishReason = fr
			return true, nil
		}
		return false, nil
	})

	if scanErr != nil {
		if errors.Is(scanErr, context.Canceled) || errors.Is(scanErr, context.DeadlineExceeded) {
			return nil, abortErr(scanErr)
		}
		return nil, &StreamError{Partial: accumulated.String(), Err: scanErr}
	}

	if seenModel == "" {
		seenModel = modelName
	}
	return &Result{
		Text:         accumulated.String(),
		Kind:         KindGemini,
		Model:        seenModel,
		FinishReason: finishReason,
		Elapsed:      time.Since(start),
	}, nil
}

// =============================================================================
// CREDENTIAL MANAGEMENT CALLS
// =============================================================================

// TestConnection verifies the credential can authenticate.
func (c *GeminiClient) TestConnection(ctx context.Context, cred Credential) error {
	_, err := c.ListModels(ctx, cred)
	return err
}

// ListModels returns the model names the credential can access, with the
// "models/" prefix stripped.
func (c *GeminiClient) ListModels(ctx context.Context, cred Credential) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(cred)+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", cred.Key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model listing failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxSSEChunkSize))
		return nil, apiErrorFromResponse(KindGemini, resp.StatusCode, errBody)
	}

	var wire struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	models := make([]string, 0, len(wire.Models))
	for _, m := range wire.Models {
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	return models, nil
}
