package generation

import (
	"context"
	"fmt"
	"strings"
)

// Input is what the copy generator sees: the seller's raw facts about
// the item, never identity or quota state.
type Input struct {
	Title     string
	Category  string
	Condition string
	Notes     string
	PhotoURLs []string
}

// Copy is a generated listing draft.
type Copy struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Bullets     []string `json:"bullets,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Generator produces listing copy from seller input. The production
// implementation calls an external vision/LLM service; the stub below
// keeps the pipeline runnable without one.
type Generator interface {
	Generate(ctx context.Context, in Input) (*Copy, error)
}

// StubGenerator is a deterministic template-based generator used until
// the external model endpoint is wired in deployment config.
type StubGenerator struct{}

func NewStubGenerator() *StubGenerator {
	return &StubGenerator{}
}

func (g *StubGenerator) Generate(_ context.Context, in Input) (*Copy, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("generation: title is required")
	}

	condition := in.Condition
	if condition == "" {
		condition = "good"
	}

	desc := fmt.Sprintf("%s in %s condition.", in.Title, strings.ReplaceAll(condition, "_", " "))
	if in.Notes != "" {
		desc += " " + in.Notes
	}

	bullets := []string{
		fmt.Sprintf("Condition: %s", strings.ReplaceAll(condition, "_", " ")),
	}
	if in.Category != "" {
		bullets = append(bullets, fmt.Sprintf("Category: %s", in.Category))
	}
	if len(in.PhotoURLs) > 0 {
		bullets = append(bullets, fmt.Sprintf("%d photos included", len(in.PhotoURLs)))
	}

	var tags []string
	for _, word := range strings.Fields(strings.ToLower(in.Title)) {
		if len(word) > 2 {
			tags = append(tags, word)
		}
	}
	if in.Category != "" {
		tags = append(tags, strings.ToLower(in.Category))
	}

	return &Copy{
		Title:       in.Title,
		Description: desc,
		Bullets:     bullets,
		Tags:        tags,
	}, nil
}
