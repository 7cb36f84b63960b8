package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitstack/support-assistant/internal/model"
)

func newFeedbackFixture(t *testing.T) (*FeedbackService, string) {
	t.Helper()
	convSvc, mem, _ := newTestService(t)
	fbSvc := NewFeedbackService(mem, mem, convSvc, testLogger(t))

	session, err := convSvc.InitializeOrResume(context.Background(), anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)

	return fbSvc, session.Messages[0].ID
}

func TestSubmitAndFetchFeedback(t *testing.T) {
	svc, messageID := newFeedbackFixture(t)
	ctx := context.Background()

	fb, err := svc.SubmitFeedback(ctx, messageID, model.FeedbackNotHelpful, nil, "did not answer my question", "u1")
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackNotHelpful, fb.Type)

	got, err := svc.GetFeedback(ctx, messageID)
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackNotHelpful, got.Type)
	assert.Equal(t, "did not answer my question", got.Comment)
	assert.Equal(t, "u1", got.RaterID)
}

func TestLatestFeedbackWins(t *testing.T) {
	svc, messageID := newFeedbackFixture(t)
	ctx := context.Background()

	_, err := svc.SubmitFeedback(ctx, messageID, model.FeedbackNotHelpful, nil, "", "")
	require.NoError(t, err)

	rating := 5
	_, err = svc.SubmitFeedback(ctx, messageID, model.FeedbackHelpful, &rating, "better on second read", "")
	require.NoError(t, err)

	got, err := svc.GetFeedback(ctx, messageID)
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackHelpful, got.Type)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 5, *got.Rating)
}

func TestSubmitFeedbackRejectsUnknownType(t *testing.T) {
	svc, messageID := newFeedbackFixture(t)

	_, err := svc.SubmitFeedback(context.Background(), messageID, "meh", nil, "", "")
	assert.ErrorIs(t, err, ErrInvalidFeedbackType)
}

func TestSubmitFeedbackUnknownMessageFailsGenerically(t *testing.T) {
	svc, _ := newFeedbackFixture(t)

	_, err := svc.SubmitFeedback(context.Background(), "missing", model.FeedbackHelpful, nil, "", "")
	assert.ErrorIs(t, err, ErrFeedbackFailed)
}
