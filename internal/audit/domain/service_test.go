package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorFromContext(t *testing.T) {
	ctx := context.Background()

	// Plain request contexts default to the api actor.
	assert.Equal(t, ActorTypeAPI, ActorFromContext(ctx))

	assert.Equal(t, ActorTypeSystem, ActorFromContext(WithActor(ctx, ActorTypeSystem)))

	// An empty override falls back to the default.
	assert.Equal(t, ActorTypeAPI, ActorFromContext(WithActor(ctx, "")))
}
