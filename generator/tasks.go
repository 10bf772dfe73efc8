package generator

import (
	"errors"
	"strings"
)

type Task int

const (
	Summarize Task = iota
	ExtractActionItems
	Polish
	Expand
)

var ErrUnknownTask = errors.New("unknown task")

type taskInfo struct {
	label    string
	key      string
	template string
}

var tasks = []taskInfo{
	Summarize: {
		label:    "Summary",
		key:      "summarize",
		template: "Summarize the following text concisely, highlighting the main points:",
	},
	ExtractActionItems: {
		label:    "Action Items",
		key:      "actions",
		template: "Extract a list of actionable tasks or to-do items from the following text:",
	},
	Polish: {
		label:    "Polish & Rewrite",
		key:      "polish",
		template: "Rewrite the following text to be more professional, clear, and grammatically correct:",
	},
	Expand: {
		label:    "Expand Thoughts",
		key:      "expand",
		template: "Expand on the ideas in the following text, providing more context and potential details:",
	},
}

// Tasks lists every task in display order.
func Tasks() []Task {
	return []Task{Summarize, ExtractActionItems, Polish, Expand}
}

func (t Task) Valid() bool {
	return t >= 0 && int(t) < len(tasks)
}

// String is the task's display label, which is also what a note stores as
// its prompt type.
func (t Task) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return tasks[t].label
}

func (t Task) Key() string {
	if !t.Valid() {
		return ""
	}
	return tasks[t].key
}

func (t Task) Template() string {
	if !t.Valid() {
		return ""
	}
	return tasks[t].template
}

// Prompt wraps noteText in the task's instruction.
func (t Task) Prompt(noteText string) string {
	return t.Template() + "\n\n\"" + noteText + "\""
}

// ParseTask accepts a display label or a short key, case-insensitively.
func ParseTask(s string) (Task, error) {
	s = strings.TrimSpace(s)
	for i, info := range tasks {
		if strings.EqualFold(s, info.label) || strings.EqualFold(s, info.key) {
			return Task(i), nil
		}
	}
	return 0, ErrUnknownTask
}
