package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	punctuatePrompt = "You are a helpful editor for children's stories. Fix the punctuation, capitalization, and formatting of the following story. Keep the original words and meaning. Return only the corrected text."
	titlePrompt     = "Generate a single short, cute, kid-friendly title for the following story. Return only the title text, nothing else."
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete sends one system and one user message and returns the trimmed
// first choice, which may be empty.
func (s *Server) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:     s.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.CompletionURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.OpenAIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %d %s", errUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (s *Server) handlePunctuate(rw http.ResponseWriter, req *http.Request) {
	if s.cfg.OpenAIKey == "" {
		writeError(rw, http.StatusInternalServerError, "Server misconfigured: missing API key")
		return
	}
	var body struct {
		StoryText string `json:"storyText"`
	}
	if err := decodeJSON(req, &body); err != nil || body.StoryText == "" {
		writeError(rw, http.StatusBadRequest, `Missing or invalid "storyText" field`)
		return
	}

	text, err := s.complete(req.Context(), punctuatePrompt, truncate(body.StoryText, maxStoryChars), storyMaxTokens)
	if err != nil {
		writeUpstreamError(rw, "Punctuate", "AI service", err)
		return
	}
	if text == "" {
		text = body.StoryText
	}
	writeJSON(rw, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleTitle(rw http.ResponseWriter, req *http.Request) {
	if s.cfg.OpenAIKey == "" {
		writeError(rw, http.StatusInternalServerError, "Server misconfigured: missing API key")
		return
	}
	var body struct {
		Story string `json:"story"`
	}
	if err := decodeJSON(req, &body); err != nil || body.Story == "" {
		writeError(rw, http.StatusBadRequest, `Missing or invalid "story" field`)
		return
	}

	title, err := s.complete(req.Context(), titlePrompt, truncate(body.Story, maxTitleChars), titleMaxTokens)
	if err != nil {
		writeUpstreamError(rw, "Title generation", "AI service", err)
		return
	}
	if title == "" {
		title = fallbackTitle
	}
	writeJSON(rw, http.StatusOK, map[string]string{"title": title})
}
