package idgen

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Generator hands out time-ordered UUIDs so that event ids sort by creation.
type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) GetID(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}

	return id.String(), nil
}
