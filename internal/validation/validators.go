package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/smart-tasks/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	// ErrInvalidTask is wrapped by every task validation failure
	ErrInvalidTask = errors.New("invalid task")
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("priority", validatePriority); err != nil {
		panic(fmt.Sprintf("failed to register priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_status", validateTaskStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
}

func validatePriority(fl validator.FieldLevel) bool {
	return ValidatePriority(fl.Field().String()) == nil
}

func validateTaskStatus(fl validator.FieldLevel) bool {
	return ValidateTaskStatus(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidatePriority validates a Priority string value
func ValidatePriority(value string) error {
	switch models.Priority(value) {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return nil
	default:
		return fmt.Errorf("invalid priority: %s (must be 'HIGH', 'MEDIUM', or 'LOW')", value)
	}
}

// ValidateTaskStatus validates a TaskStatus string value
func ValidateTaskStatus(value string) error {
	switch models.TaskStatus(value) {
	case models.TaskStatusPending, models.TaskStatusCompleted:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'PENDING' or 'COMPLETED')", value)
	}
}

// ValidateTask checks the required fields of a task and the parent/subtask
// exclusivity. Failures are programmer errors and wrap ErrInvalidTask.
func ValidateTask(task *models.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidTask)
	}
	if err := Validate.Struct(task); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidTask, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if strings.TrimSpace(task.Description) == "" {
		return fmt.Errorf("%w: description is blank", ErrInvalidTask)
	}
	if task.IsParent && task.IsSubtask {
		return fmt.Errorf("%w: task %s cannot be both parent and subtask", ErrInvalidTask, task.ID)
	}
	if task.IsParent && len(task.ChildTaskIDs) == 0 {
		return fmt.Errorf("%w: parent task %s has no children", ErrInvalidTask, task.ID)
	}
	return nil
}
