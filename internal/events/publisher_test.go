package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmatch/internal/logger"
)

func TestRecorderCountsPerSubject(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()

	require.NoError(t, rec.Publish(ctx, SubjectHandoff, Event{SessionID: "s1"}))
	require.NoError(t, rec.Publish(ctx, SubjectHandoff, Event{SessionID: "s2"}))
	require.NoError(t, rec.Publish(ctx, SubjectRecommendation, Event{SessionID: "s1"}))

	assert.Equal(t, 2, rec.Count(SubjectHandoff))
	assert.Equal(t, 1, rec.Count(SubjectRecommendation))
	assert.Zero(t, rec.Count(SubjectSessionClosed))
	assert.Equal(t, "s2", rec.Events[SubjectHandoff][1].SessionID)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), SubjectHandoff, Event{}))
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect(Config{URL: "nats://127.0.0.1:1"}, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}
