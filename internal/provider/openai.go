// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
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
// OPENAI-COMPATIBLE CLIENT
// =============================================================================

// DefaultOpenAIBaseURL is the endpoint used when a credential has no override.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// DefaultOpenAIModel is used when neither the credential nor the request
// names a model.
const DefaultOpenAIModel = "gpt-4o-mini"

// maxSSEChunkSize bounds a single SSE data line (64KB).
const maxSSEChunkSize = 64 * 1024

// OpenAIClient talks to any OpenAI-compatible chat/completions endpoint.
type OpenAIClient struct {
	httpClient   *http.Client
	streamClient *http.Client
}

// NewOpenAIClient creates a client backed by the shared HTTP clients.
func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{
		httpClient:   sharedClient,
		streamClient: sharedStreamingClient,
	}
}

// openAIMessage is one wire-format chat turn.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the chat/completions request body.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

// openAIChunk is one streamed delta event.
type openAIChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *openAIChunk) content() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

func (c *openAIChunk) finishReason() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].FinishReason
	}
	return ""
}

// buildMessages converts a Request into wire turns. The prompt always lands
// as the final user turn; the history never contains it.
func buildMessages(req Request) []openAIMessage {
	msgs := make([]openAIMessage, 0, len(req.History)+2)
	if req.Instruction != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: req.Instruction})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == model.RoleModel {
			role = "assistant"
		}
		msgs = append(msgs, openAIMessage{Role: role, Content: turn.Text})
	}
	msgs = append(msgs, openAIMessage{Role: "user", Content: req.Prompt})
	return msgs
}

// resolveModel picks the effective model name for a credential.
func resolveModel(cred Credential, fallback string) string {
	if cred.Model != "" {
		return cred.Model
	}
	return fallback
}

func (c *OpenAIClient) baseURL(cred Credential) string {
	if cred.BaseURL != "" {
		return strings.TrimRight(cred.BaseURL, "/")
	}
	return DefaultOpenAIBaseURL
}

// =============================================================================
// STREAMING
// =============================================================================

// StreamChat performs a streaming chat completion. onChunk receives the
// cumulative text after every delta. Cancellation returns an error
// satisfying ErrAborted with no further callbacks.
func (c *OpenAIClient) StreamChat(ctx context.Context, cred Credential, req Request, onChunk ChunkFunc) (*Result, error) {
	start := time.Now()
	modelName := resolveModel(cred, DefaultOpenAIModel)

	body := openAIRequest{
		Model:       modelName,
		Messages:    buildMessages(req),
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxTokens,
		Stream:      true,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(cred)+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

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
		return nil, apiErrorFromResponse(KindOpenAI, resp.StatusCode, errBody)
	}

	var accumulated strings.Builder
	var finishReason, seenModel string

	scanErr := scanSSE(ctx, resp.Body, func(data []byte) (done bool, err error) {
		if bytes.Equal(data, []byte("[DONE]")) {
			return true, nil
		}
		var chunk openAIChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Malformed chunks are skipped, not fatal.
			return false, nil
		}
		if chunk.Model != "" {
			seenModel = chunk.Model
		}
		if content := chunk.content(); content != "" {
			accumulated.WriteString(content)
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
		Kind:         KindOpenAI,
		Model:        seenModel,
		FinishReason: finishReason,
		Elapsed:      time.Since(start),
	}, nil
}

// scanSSE reads "data:" events from an SSE body and hands each payload to fn
// until fn reports done, the stream ends, or the context is cancelled.
func scanSSE(ctx context.Context, body io.Reader, fn func(data []byte) (bool, error)) error {
	reader := bufio.NewReader(body)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read error: %w", err)
		}

		line = bytes.TrimRight(line, "\r\n")
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[5:])
		if len(data) == 0 {
			continue
		}
		if len(data) > maxSSEChunkSize {
			return fmt.Errorf("chunk too large: %d bytes", len(data))
		}

		done, err := fn(data)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// apiErrorFromResponse builds an APIError, extracting the backend's message
// when the body is the conventional {"error": {"message": ...}} shape.
func apiErrorFromResponse(kind Kind, status int, body []byte) error {
	var wire struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &wire); err == nil {
		msg = wire.Error.Message
	}
	return &APIError{Status: status, Kind: kind, Message: msg}
}

// =============================================================================
// CREDENTIAL MANAGEMENT CALLS
// =============================================================================

// TestConnection verifies the credential can authenticate.
func (c *OpenAIClient) TestConnection(ctx context.Context, cred Credential) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(cred)+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxSSEChunkSize))
		return apiErrorFromResponse(KindOpenAI, resp.StatusCode, errBody)
	}
	return nil
}

// ListModels returns the model IDs the credential can access.
func (c *OpenAIClient) ListModels(ctx context.Context, cred Credential) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(cred)+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model listing failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxSSEChunkSize))
		return nil, apiErrorFromResponse(KindOpenAI, resp.StatusCode, errBody)
	}

	var wire struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	models := make([]string, 0, len(wire.Data))
	for _, m := range wire.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
