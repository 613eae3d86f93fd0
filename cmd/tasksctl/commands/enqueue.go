package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/benvon/smart-tasks/internal/config"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/queue"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewEnqueueCmd creates the enqueue command with extract and complete subcommands
func NewEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a job for the worker",
	}
	cmd.AddCommand(newEnqueueExtractCmd())
	cmd.AddCommand(newEnqueueCompleteCmd())
	return cmd
}

func enqueue(cmd *cobra.Command, job *queue.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}

	q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := q.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close queue: %v\n", err)
		}
	}()

	if err := q.Enqueue(cmd.Context(), job); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s job %s\n", job.Type, job.ID)
	return nil
}

// newExtractMessage builds the message for an extract job, generating an id when none is given
func newExtractMessage(id, threadID, subject, body string, now time.Time) models.Message {
	if id == "" {
		id = uuid.NewString()
	}
	return models.Message{ID: id, ThreadID: threadID, Subject: subject, Body: body, ReceivedAt: now.UTC()}
}

func newEnqueueExtractCmd() *cobra.Command {
	var id, threadID, subject, body, bodyFile string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Ask the worker to extract tasks from a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("failed to read body file: %w", err)
				}
				body = string(data)
			}
			if body == "" {
				return fmt.Errorf("--body or --body-file is required")
			}
			return enqueue(cmd, queue.NewExtractJob(newExtractMessage(id, threadID, subject, body, time.Now())))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Message id (generated when empty)")
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id")
	cmd.Flags().StringVar(&subject, "subject", "", "Message subject")
	cmd.Flags().StringVar(&body, "body", "", "Message body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the message body from a file")
	_ = cmd.MarkFlagRequired("thread")
	return cmd
}

func newEnqueueCompleteCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Ask the worker to complete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueue(cmd, queue.NewCompleteJob(args[0], comment))
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "Completion comment")
	return cmd
}
