package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/benvon/smart-tasks/internal/models"
)

// Classifier is the language-model collaborator of the consolidation engine.
// Every call may fail; callers decide how to degrade.
type Classifier interface {
	// ExtractTasks pulls candidate action items out of a message
	ExtractTasks(ctx context.Context, msg models.Message) ([]models.ExtractedTask, error)

	// CompareSimilarity scores how likely two descriptions are the same work, in [0,1]
	CompareSimilarity(ctx context.Context, a, b string) (float64, error)

	// Summarize produces a single description that covers all the given descriptions
	Summarize(ctx context.Context, descriptions []string) (string, error)
}

// ProviderFactory creates a classifier from string settings
type ProviderFactory func(config map[string]string) (Classifier, error)

// ProviderRegistry stores available classifier providers
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// DefaultRegistry returns a registry with the openai and offline providers registered.
// Recognised openai settings: api_key, base_url, model, requests_per_second, debug.
func DefaultRegistry(opts ...OpenAIOption) *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register("openai", func(config map[string]string) (Classifier, error) {
		c, err := NewOpenAIClassifierFromConfig(config, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
	r.Register("offline", func(map[string]string) (Classifier, error) {
		return NewOfflineClassifier(), nil
	})
	return r
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(name)] = factory
}

// GetProvider builds the named classifier
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (Classifier, error) {
	r.mu.RLock()
	factory, ok := r.providers[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}

// OfflineClassifier never reaches a model. Similarity and summaries fail with a
// recoverable error so the engine falls back to its lexical estimate and templated text.
type OfflineClassifier struct{}

// NewOfflineClassifier creates an offline classifier
func NewOfflineClassifier() *OfflineClassifier {
	return &OfflineClassifier{}
}

// ExtractTasks cannot run offline; tasks must be supplied by the caller
func (c *OfflineClassifier) ExtractTasks(ctx context.Context, msg models.Message) ([]models.ExtractedTask, error) {
	return nil, ErrOfflineMode
}

// CompareSimilarity always fails so the lexical estimate is used
func (c *OfflineClassifier) CompareSimilarity(ctx context.Context, a, b string) (float64, error) {
	return 0, ErrOfflineMode
}

// Summarize always fails so the templated parent description is used
func (c *OfflineClassifier) Summarize(ctx context.Context, descriptions []string) (string, error) {
	return "", ErrOfflineMode
}

var _ Classifier = (*OfflineClassifier)(nil)
