package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/systemsaholic/clerk-sync/internal/models"
)

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "clerksync.user.created", SubjectFor("clerksync", models.EventUserCreated))
	assert.Equal(t, "clerksync.user.deleted", SubjectFor("clerksync", models.EventUserDeleted))
	assert.Equal(t, "idp.user.updated", SubjectFor("idp", models.EventUserUpdated))
}

func TestNoopPublisher(t *testing.T) {
	p := NoopPublisher{}
	err := p.Publish(context.Background(), SyncEvent{
		EventType:  models.EventUserCreated,
		UserID:     "local-1",
		ClerkID:    "user_abc",
		OccurredAt: time.Now(),
	})
	assert.NoError(t, err)
	p.Close()
}
