package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/smart-tasks/internal/models"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"

	extractSystemPrompt = "You extract actionable tasks from messages. Respond with valid JSON only."
	compareSystemPrompt = "You decide whether two task descriptions describe the same piece of work. Respond with valid JSON only."
	summarySystemPrompt = "You write one short imperative task description that covers a group of related tasks. Respond with the description only."
)

// OpenAIClassifier implements Classifier using OpenAI's chat completions API
type OpenAIClassifier struct {
	client    openai.Client
	model     string
	limiter   *rate.Limiter
	rps       float64
	burst     int
	logger    *zap.Logger
	debugMode bool
	now       func() time.Time
}

// OpenAIOption configures an OpenAIClassifier
type OpenAIOption func(*OpenAIClassifier)

// WithLogger sets the logger used for request/response debug logs
func WithLogger(logger *zap.Logger) OpenAIOption {
	return func(c *OpenAIClassifier) { c.logger = logger }
}

// WithDebugMode enables full prompt/response logging
func WithDebugMode(debug bool) OpenAIOption {
	return func(c *OpenAIClassifier) { c.debugMode = debug }
}

// WithRequestsPerSecond paces outgoing calls. Zero or negative disables pacing.
func WithRequestsPerSecond(rps float64) OpenAIOption {
	return func(c *OpenAIClassifier) { c.rps = rps }
}

// WithBurst lets up to n calls start together, typically the clustering batch size.
// Values below 1 mean 1.
func WithBurst(n int) OpenAIOption {
	return func(c *OpenAIClassifier) { c.burst = n }
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	burst = max(burst, 1)
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewOpenAIClassifier creates a new OpenAI-backed classifier
func NewOpenAIClassifier(apiKey, baseURL, model string, opts ...OpenAIOption) *OpenAIClassifier {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	c := &OpenAIClassifier{
		client:  client,
		model:   model,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = newLimiter(c.rps, c.burst)
	return c
}

// NewOpenAIClassifierFromConfig builds a classifier from registry settings.
// Settings override options given in opts.
func NewOpenAIClassifierFromConfig(config map[string]string, opts ...OpenAIOption) (*OpenAIClassifier, error) {
	apiKey := config["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key not configured", ErrClassifierUnavailable)
	}
	if v := config["requests_per_second"]; v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid requests_per_second %q: %w", v, err)
		}
		opts = append(opts, WithRequestsPerSecond(rps))
	}
	if v := config["burst"]; v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid burst %q: %w", v, err)
		}
		opts = append(opts, WithBurst(burst))
	}
	if config["debug"] == "true" {
		opts = append(opts, WithDebugMode(true))
	}
	return NewOpenAIClassifier(apiKey, config["base_url"], config["model"], opts...), nil
}

// ExtractTasks asks the model for the action items in msg
func (c *OpenAIClassifier) ExtractTasks(ctx context.Context, msg models.Message) ([]models.ExtractedTask, error) {
	content, err := c.complete(ctx, "extract_tasks", extractSystemPrompt, buildExtractionPrompt(msg, c.now()), true, 1500)
	if err != nil {
		return nil, err
	}
	return parseExtractionResponse(content)
}

// CompareSimilarity asks the model how likely a and b describe the same work
func (c *OpenAIClassifier) CompareSimilarity(ctx context.Context, a, b string) (float64, error) {
	content, err := c.complete(ctx, "compare_similarity", compareSystemPrompt, buildComparePrompt(a, b), true, 100)
	if err != nil {
		return 0, err
	}
	return parseSimilarityResponse(content)
}

// Summarize asks the model for one description covering all descriptions
func (c *OpenAIClassifier) Summarize(ctx context.Context, descriptions []string) (string, error) {
	content, err := c.complete(ctx, "summarize", summarySystemPrompt, buildSummaryPrompt(descriptions), false, 200)
	if err != nil {
		return "", err
	}
	summary := strings.Trim(strings.TrimSpace(content), "\"")
	if summary == "" {
		return "", fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	return summary, nil
}

func (c *OpenAIClassifier) complete(ctx context.Context, operation, system, prompt string, jsonMode bool, maxTokens int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to %s: %w", operation, err)
	}

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(system),
		openai.UserMessage(prompt),
	}
	req := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openai.Int(maxTokens),
	}
	if jsonMode {
		req.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	threadID := ExtractThreadID(ctx)
	messageID := ExtractMessageID(ctx)
	requestID := ExtractRequestID(ctx)

	if c.logger != nil && c.debugMode {
		c.logger.Debug("llm_api_request",
			zap.String("operation", operation),
			zap.String("model", c.model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
			zap.String("thread_id", threadID),
			zap.String("message_id", messageID),
			zap.String("request_id", requestID),
		)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if c.logger != nil && c.debugMode {
			c.logger.Debug("llm_api_error",
				zap.String("operation", operation),
				zap.String("model", c.model),
				zap.Error(err),
				zap.String("thread_id", threadID),
				zap.String("request_id", requestID),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("failed to %s: %w", operation, apiErr)
		}
		return "", fmt.Errorf("failed to %s: %w", operation, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s", ErrMalformedResponse, ErrNoChoicesInResponse)
	}
	content := resp.Choices[0].Message.Content

	if c.logger != nil && c.debugMode {
		c.logger.Debug("llm_api_response",
			zap.String("operation", operation),
			zap.String("model", c.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("thread_id", threadID),
			zap.String("request_id", requestID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}
	return content, nil
}

func buildExtractionPrompt(msg models.Message, now time.Time) string {
	var b strings.Builder
	b.WriteString("Extract every actionable task from the message below.\n\n")
	b.WriteString("Time context:\n")
	fmt.Fprintf(&b, "- Current date and time: %s\n", now.UTC().Format(time.RFC3339))
	if !msg.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "- Message received at: %s\n", msg.ReceivedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\nMessage:\n")
	if msg.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	}
	b.WriteString(msg.Body)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- description: short imperative sentence\n")
	b.WriteString("- deadline: ISO 8601 date or date-time, or null when the message gives none; resolve relative dates against the received time\n")
	b.WriteString("- priority: one of HIGH, MEDIUM, LOW\n")
	b.WriteString("- dependencies: exact descriptions of other tasks from this message that must be done first\n\n")
	b.WriteString(`Respond as {"tasks":[{"description":"...","deadline":null,"priority":"MEDIUM","dependencies":[]}]}`)
	return b.String()
}

func buildComparePrompt(a, b string) string {
	return fmt.Sprintf("Task A: %s\nTask B: %s\n\n"+
		"How likely is it that completing one of these tasks completes the other? "+
		`Respond as {"similarity": <number between 0 and 1>}`, a, b)
}

func buildSummaryPrompt(descriptions []string) string {
	var b strings.Builder
	b.WriteString("These tasks are parts of one larger piece of work:\n")
	for _, d := range descriptions {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	b.WriteString("\nWrite one task description, under 15 words, that covers all of them.")
	return b.String()
}

// extractJSONObject returns the outermost {...} span when the model wraps JSON in prose
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func parseExtractionResponse(content string) ([]models.ExtractedTask, error) {
	var parsed struct {
		Tasks []models.ExtractedTask `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	tasks := make([]models.ExtractedTask, 0, len(parsed.Tasks))
	for _, t := range parsed.Tasks {
		if strings.TrimSpace(t.Description) == "" {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func parseSimilarityResponse(content string) (float64, error) {
	var parsed struct {
		Similarity *float64 `json:"similarity"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	if parsed.Similarity == nil {
		return 0, fmt.Errorf("%w: missing similarity", ErrMalformedResponse)
	}
	return *parsed.Similarity, nil
}

var _ Classifier = (*OpenAIClassifier)(nil)
