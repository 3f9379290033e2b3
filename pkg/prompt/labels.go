package prompt

import (
	"fmt"
	"strings"
)

// LabelMap maps canonical prompts to the human-written reference reply.
// It is filled once before training and only read afterwards.
type LabelMap map[string]string

// Add records labels[i] for prompts[i]. A prompt seen before is
// overwritten.
func (m LabelMap) Add(prompts, labels []string) error {
	if len(prompts) != len(labels) {
		return fmt.Errorf("got %d prompts but %d labels", len(prompts), len(labels))
	}
	for i, p := range prompts {
		m[p] = labels[i]
	}
	return nil
}

// Label returns the reference label of prompt, ignoring surrounding
// whitespace.
func (m LabelMap) Label(prompt string) (string, error) {
	key := strings.TrimSpace(prompt)
	label, ok := m[key]
	if !ok {
		return "", ErrNotFound{Prompt: key}
	}
	return label, nil
}

// ErrNotFound is returned when a prompt has no reference label. For
// training prompts this means prompt construction drifted from the
// generation pipeline.
type ErrNotFound struct {
	Prompt string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("no reference label for prompt %q", e.Prompt)
}
