// Package translate holds the OpenAI-compatible summarizer and a free
// Google Translate fallback for titles.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/aicybermon/internal/enrich"
	"github.com/deusflow/aicybermon/internal/retry"
)

const DefaultOpenAIModel = openai.GPT4oMini

var ErrNoChoices = errors.New("no response from OpenAI")

// OpenAI summarizes through any OpenAI-compatible chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds the provider. baseURL may point at a compatible server;
// empty keeps the OpenAI default.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return "openai/" + o.model }

// Summarize implements enrich.Summarizer.
func (o *OpenAI) Summarize(ctx context.Context, req enrich.Request) (enrich.Result, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: enrich.BuildPrompt(req),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature:         0.3,
		MaxCompletionTokens: 2000,
	})
	if err != nil {
		return enrich.Result{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return enrich.Result{}, ErrNoChoices
	}
	return enrich.ParseResponse(resp.Choices[0].Message.Content)
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && permanentStatus(apiErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && permanentStatus(reqErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	return err
}

func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

// GoogleTranslator uses the free Google Translate endpoint. It fills in
// translated titles when the model left them out.
type GoogleTranslator struct {
	BaseURL string
	Client  *http.Client
}

func NewGoogleTranslator() *GoogleTranslator {
	return &GoogleTranslator{
		BaseURL: "https://translate.googleapis.com/translate_a/single",
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// TranslateTitle implements enrich.TitleTranslator.
func (g *GoogleTranslator) TranslateTitle(ctx context.Context, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", LanguageCode(language))
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google Translate API returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	translation, err := parseGoogleTranslateResponse(body)
	if err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	return strings.TrimSpace(translation), nil
}

// parseGoogleTranslateResponse parses Google Translate API response
func parseGoogleTranslateResponse(body []byte) (string, error) {
	// Google Translate returns array of arrays
	var response []interface{}

	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}

	if len(response) == 0 {
		return "", errors.New("empty response from Google Translate")
	}

	translations, ok := response[0].([]interface{})
	if !ok {
		return "", errors.New("unexpected response format")
	}

	var result strings.Builder
	for _, translation := range translations {
		if translationArray, ok := translation.([]interface{}); ok && len(translationArray) > 0 {
			if translatedText, ok := translationArray[0].(string); ok {
				result.WriteString(translatedText)
			}
		}
	}

	if result.Len() == 0 {
		return "", errors.New("empty translation")
	}
	return result.String(), nil
}

var languageCodes = map[string]string{
	"hebrew":    "iw",
	"english":   "en",
	"ukrainian": "uk",
	"danish":    "da",
	"russian":   "ru",
	"arabic":    "ar",
	"german":    "de",
	"french":    "fr",
	"spanish":   "es",
	"chinese":   "zh-CN",
}

// LanguageCode maps a language name to its Google Translate code; codes
// pass through unchanged.
func LanguageCode(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if code, ok := languageCodes[l]; ok {
		return code
	}
	return l
}
