package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TextGenerator produces a title and a short theme list for a dream entry.
type TextGenerator interface {
	Annotate(ctx context.Context, content string) (Annotation, error)
}

type Annotation struct {
	Title  string   `json:"title"`
	Themes []string `json:"themes"`
}

const (
	DefaultAIBaseURL = "https://api.openai.com/v1"
	DefaultAIModel   = "gpt-4o-mini"
	aiTimeout        = 30 * time.Second
)

const annotatePrompt = `Give this dream journal entry a short title (at most six words) and up to
three one-word themes. Reply only with JSON: {"title": "...", "themes": ["..."]}.`

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewOpenAIGenerator(baseURL, apiKey, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("AI API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultAIBaseURL
	}
	if model == "" {
		model = DefaultAIModel
	}
	return &OpenAIGenerator{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: aiTimeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) Annotate(ctx context.Context, content string) (Annotation, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: annotatePrompt},
			{Role: "user", Content: content},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return Annotation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Annotation{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Annotation{}, fmt.Errorf("ai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Annotation{}, fmt.Errorf("ai request: status %d: %s", resp.StatusCode, snippet)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Annotation{}, fmt.Errorf("decode ai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Annotation{}, fmt.Errorf("ai response has no choices")
	}

	raw := strings.TrimSpace(out.Choices[0].Message.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var a Annotation
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &a); err != nil {
		return Annotation{}, fmt.Errorf("parse ai annotation: %w", err)
	}
	return a.normalized(), nil
}

// MockGenerator annotates without any network call: the title is the first
// few words of the entry and themes come from a small keyword table.
type MockGenerator struct{}

var themeKeywords = map[string]string{
	"fly":    "flight",
	"flying": "flight",
	"water":  "water",
	"ocean":  "water",
	"sea":    "water",
	"chase":  "pursuit",
	"chased": "pursuit",
	"house":  "home",
	"home":   "home",
	"fall":   "falling",
	"fell":   "falling",
	"school": "school",
	"exam":   "school",
	"lost":   "lost",
}

func (MockGenerator) Annotate(_ context.Context, content string) (Annotation, error) {
	words := strings.Fields(content)
	n := len(words)
	if n > 5 {
		n = 5
	}
	title := strings.Join(words[:n], " ")
	if title == "" {
		title = "Untitled dream"
	}

	var themes []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
		if theme, ok := themeKeywords[w]; ok {
			themes = append(themes, theme)
		}
	}
	return Annotation{Title: title, Themes: themes}.normalized(), nil
}

func (a Annotation) normalized() Annotation {
	a.Title = strings.TrimSpace(a.Title)
	seen := make(map[string]bool, len(a.Themes))
	themes := make([]string, 0, len(a.Themes))
	for _, t := range a.Themes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		themes = append(themes, t)
		if len(themes) == 3 {
			break
		}
	}
	a.Themes = themes
	return a
}
