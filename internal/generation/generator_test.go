package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubGenerator_ProducesCopy(t *testing.T) {
	g := NewStubGenerator()

	c, err := g.Generate(context.Background(), Input{
		Title:     "Trek Marlin 5 Mountain Bike",
		Category:  "Bicycles",
		Condition: "like_new",
		Notes:     "Barely ridden, garage kept.",
		PhotoURLs: []string{"https://img.example.com/1.jpg", "https://img.example.com/2.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Trek Marlin 5 Mountain Bike", c.Title)
	assert.Contains(t, c.Description, "like new condition")
	assert.Contains(t, c.Description, "Barely ridden")
	assert.Contains(t, c.Bullets, "Condition: like new")
	assert.Contains(t, c.Bullets, "Category: Bicycles")
	assert.Contains(t, c.Bullets, "2 photos included")
	assert.Contains(t, c.Tags, "bicycles")
	assert.Contains(t, c.Tags, "trek")
}

func TestStubGenerator_DefaultsCondition(t *testing.T) {
	g := NewStubGenerator()

	c, err := g.Generate(context.Background(), Input{Title: "Old Lamp"})
	require.NoError(t, err)
	assert.Contains(t, c.Description, "good condition")
}

func TestStubGenerator_RequiresTitle(t *testing.T) {
	g := NewStubGenerator()

	_, err := g.Generate(context.Background(), Input{Title: "   "})
	assert.Error(t, err)
}
