package task

import "github.com/google/uuid"

// NewID mints a fresh stable task or step id for a caller ingesting a task
// (or injecting a step, e.g. a prerequisite or recovery sub-step) that
// doesn't already have an upstream-supplied identifier.
func NewID() string {
	return uuid.NewString()
}

// NewTask constructs an empty Task with a freshly minted id.
func NewTask(title string) *Task {
	return &Task{ID: NewID(), Title: title, Metadata: map[string]any{}}
}

// NewStep constructs a Step with a freshly minted id at the given order.
func NewStep(order int, label string, meta map[string]any) Step {
	if meta == nil {
		meta = map[string]any{}
	}
	return Step{ID: NewID(), Order: order, Label: label, Meta: meta}
}
