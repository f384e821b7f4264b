package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	ReasoningEffort string
}

// StopReasonStop is the normal completion finish reason reported by
// OpenAI-compatible providers.
const StopReasonStop = "stop"

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *OpenAICompatibleClient) requestBody(cfg ChatConfig, messages []ChatMessage, stream bool) map[string]interface{} {
	body := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   stream,
	}
	if cfg.Temperature > 0 {
		body["temperature"] = cfg.Temperature
	}
	if cfg.ReasoningEffort != "" {
		body["reasoning_effort"] = cfg.ReasoningEffort
	}
	return body
}

func (c *OpenAICompatibleClient) newRequest(ctx context.Context, cfg ChatConfig, body interface{}) (*http.Request, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}
	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	return req, nil
}

// Complete runs a non-streaming chat completion and returns the full text.
func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	req, err := c.newRequest(ctx, cfg, c.requestBody(cfg, messages, false))
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// StreamComplete runs a streaming chat completion, invoking onDelta for each
// token fragment in arrival order. It returns the accumulated text and the
// provider's finish reason. The relay is pass-through: nothing is buffered
// beyond the accumulator, and cancelling ctx aborts the upstream call.
func (c *OpenAICompatibleClient) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onDelta func(delta string) error,
) (string, string, error) {
	req, err := c.newRequest(ctx, cfg, c.requestBody(cfg, messages, true))
	if err != nil {
		return "", "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("llm stream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("llm stream status %d: %s", resp.StatusCode, string(raw))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var full strings.Builder
	stopReason := StopReasonStop
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if reason := chunk.Choices[0].FinishReason; reason != "" {
			stopReason = reason
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}

		full.WriteString(text)
		if err := onDelta(text); err != nil {
			return "", "", err
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("scan llm stream failed: %w", err)
	}
	return full.String(), stopReason, nil
}

const visionTranscribePrompt = "Transcribe all readable text in this image. " +
	"If the image contains diagrams or figures, describe them briefly after the transcription."

// VisionClient wraps the completion client with a fixed vision model for
// image transcription during ingestion.
type VisionClient struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewVisionClient(client *OpenAICompatibleClient, cfg ChatConfig) *VisionClient {
	return &VisionClient{client: client, cfg: cfg}
}

// DescribeImage sends the image as a data URL to the vision model and
// returns the transcription plus the model identity for metadata.
func (v *VisionClient) DescribeImage(ctx context.Context, dataURL string) (string, string, error) {
	body := map[string]interface{}{
		"model": v.cfg.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": visionTranscribePrompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
				},
			},
		},
		"stream": false,
	}

	req, err := v.client.newRequest(ctx, v.cfg, body)
	if err != nil {
		return "", "", err
	}

	resp, err := v.client.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read vision response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("vision response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", "", fmt.Errorf("parse vision json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", "", fmt.Errorf("empty vision choices")
	}
	return parsed.Choices[0].Message.Content, v.cfg.Model, nil
}
