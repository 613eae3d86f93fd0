package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benvon/smart-tasks/internal/config"
	"github.com/benvon/smart-tasks/internal/consolidation"
	"github.com/benvon/smart-tasks/internal/events"
	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/services/ai"
	"github.com/benvon/smart-tasks/internal/taskstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Fixture is a scripted consolidation session
type Fixture struct {
	Messages    []FixtureMessage    `yaml:"messages"`
	Completions []FixtureCompletion `yaml:"completions,omitempty"`
}

// FixtureMessage is a message with the candidates the classifier would have extracted.
// With no tasks listed, the classifier is asked to extract them from the body.
type FixtureMessage struct {
	models.Message `yaml:",inline"`
	Tasks          []models.ExtractedTask `yaml:"tasks,omitempty"`
}

// FixtureCompletion completes the open task of a thread whose description matches
type FixtureCompletion struct {
	ThreadID    string `yaml:"thread_id"`
	Description string `yaml:"description"`
	Comment     string `yaml:"comment,omitempty"`
}

// Report is the outcome of a fixture run
type Report struct {
	Threads    []ThreadReport `yaml:"threads"`
	Events     int            `yaml:"events"`
	Notices    int            `yaml:"notices"`
	Comparator map[string]int `yaml:"comparator"`
}

// ThreadReport lists the tasks of one thread
type ThreadReport struct {
	ThreadID string     `yaml:"thread_id"`
	Tasks    []TaskView `yaml:"tasks"`
}

// TaskView is the printable form of a task
type TaskView struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Priority    string   `yaml:"priority"`
	Status      string   `yaml:"status"`
	Deadline    string   `yaml:"deadline,omitempty"`
	Parent      string   `yaml:"parent,omitempty"`
	Children    []string `yaml:"children,omitempty"`
}

// LoadFixture reads a fixture file
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// RunFixture feeds every fixture message through a fresh in-memory engine, then applies the completions
func RunFixture(ctx context.Context, f *Fixture, classifier ai.Classifier, cfg consolidation.Config, log *zap.Logger) (*Report, error) {
	store := taskstore.New(nil, log)
	recorder := events.NewRecorder()
	engine, err := consolidation.NewEngine(classifier, store, consolidation.Options{
		Config:    cfg,
		Cache:     consolidation.NewMemoryCache(),
		Publisher: events.NewDispatcher(log, recorder, events.NewLogSink(log)),
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}

	var threads []string
	seen := make(map[string]bool)
	for i, m := range f.Messages {
		if m.ReceivedAt.IsZero() {
			m.ReceivedAt = time.Now().UTC()
		}
		if len(m.Tasks) > 0 {
			_, err = engine.ProcessExtraction(ctx, m.Message, m.Tasks)
		} else {
			_, err = engine.Extract(ctx, m.Message)
		}
		if err != nil {
			return nil, fmt.Errorf("message %d (%s): %w", i, m.ID, err)
		}
		if !seen[m.ThreadID] {
			seen[m.ThreadID] = true
			threads = append(threads, m.ThreadID)
		}
	}

	for _, c := range f.Completions {
		want := models.NormalizeDescription(c.Description)
		var target *models.Task
		for _, t := range store.ByThread(ctx, c.ThreadID) {
			if models.NormalizeDescription(t.Description) == want {
				target = t
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("no open task %q in thread %s", c.Description, c.ThreadID)
		}
		if _, err := engine.CompleteTask(ctx, target.ID, c.Comment); err != nil {
			return nil, err
		}
	}

	stats := engine.Stats()
	report := &Report{
		Events:  len(recorder.Events()),
		Notices: len(recorder.Notices()),
		Comparator: map[string]int{
			"cache_hits":       int(stats.CacheHits),
			"short_circuits":   int(stats.ShortCircuits),
			"classifier_calls": int(stats.ClassifierCalls),
			"fallbacks":        int(stats.Fallbacks),
		},
	}
	for _, threadID := range threads {
		tr := ThreadReport{ThreadID: threadID}
		for _, t := range store.All(threadID) {
			tr.Tasks = append(tr.Tasks, viewOf(t))
		}
		report.Threads = append(report.Threads, tr)
	}
	return report, nil
}

func viewOf(t *models.Task) TaskView {
	v := TaskView{
		ID:          t.ID,
		Description: t.Description,
		Priority:    string(t.Priority),
		Status:      string(t.Status),
		Children:    t.ChildTaskIDs,
	}
	if t.Deadline != nil {
		v.Deadline = t.Deadline.Format("2006-01-02")
	}
	if t.ParentTaskID != nil {
		v.Parent = *t.ParentTaskID
	}
	return v
}

// NewConsolidateCmd creates the consolidate command
func NewConsolidateCmd() *cobra.Command {
	var provider, configFile string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "consolidate <fixture.yaml>",
		Short: "Run the consolidation pipeline on a fixture",
		Long: "Feed the messages of a YAML fixture through an in-memory engine and print the resulting tasks.\n" +
			"The offline provider relies on the quick filter alone; --provider openai uses the configured model.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := zap.NewNop()
			if verbose {
				if log, err = logger.NewDevelopmentLogger(cfg.WorkerDebugMode); err != nil {
					return fmt.Errorf("failed to initialize logger: %w", err)
				}
				defer func() { _ = logger.Sync(log) }()
			}

			classifier, err := ai.DefaultRegistry(ai.WithLogger(log)).GetProvider(provider, cfg.ClassifierSettings())
			if err != nil {
				return fmt.Errorf("failed to create classifier: %w", err)
			}

			fixture, err := LoadFixture(args[0])
			if err != nil {
				return err
			}
			report, err := RunFixture(cmd.Context(), fixture, classifier, cfg.EngineConfig(), log)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "offline", "Classifier provider (offline or openai)")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML file overlaying the environment configuration")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline decisions to stderr")
	return cmd
}
