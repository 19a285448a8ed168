package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lesson-forge-api/internal/domain/entity"
)

func TestFlaggedEvent_RoundTripThroughStreamFields(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lesson := &entity.Lesson{ID: "l-1", RequestID: "req-1", Title: "Jonah", RepairCycles: 2, Manifest: json.RawMessage(`{"doctrinal":"reformed-baptist@3"}`)}
	flag := &entity.LessonReviewFlag{LessonID: "l-1", SectionIDs: []string{"body-2"}, ViolationKinds: []string{"blacklisted_phrase"}, Summary: "1 violation(s) remain"}

	fields, err := newFlaggedEvent(lesson, flag, at).streamFields()
	require.NoError(t, err)
	assert.Equal(t, "l-1", fields["lesson_id"])
	assert.Equal(t, "2", fields["repair_cycles"])

	got, err := DecodeFlaggedEvent(fields)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, []string{"body-2"}, got.SectionIDs)
	assert.JSONEq(t, `{"doctrinal":"reformed-baptist@3"}`, string(got.Manifest))
	assert.True(t, at.Equal(got.FlaggedAt))
}

func TestDecodeFlaggedEvent_Rejects(t *testing.T) {
	_, err := DecodeFlaggedEvent(map[string]interface{}{"type": "lesson.created", "data": "{}"})
	assert.Error(t, err)

	_, err = DecodeFlaggedEvent(map[string]interface{}{"type": TypeLessonFlagged})
	assert.Error(t, err)

	_, err = DecodeFlaggedEvent(map[string]interface{}{"type": TypeLessonFlagged, "data": "{"})
	assert.Error(t, err)
}
