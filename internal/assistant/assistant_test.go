package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luna/internal/events"
	"luna/internal/executor"
	"luna/internal/intent"
	"luna/internal/planner"
)

func planTypes(rec *events.Recorder) []string {
	var out []string
	for _, typ := range rec.Types() {
		switch typ {
		case events.TypePlanStarted, events.TypeActionStarted, events.TypeActionCompleted,
			events.TypePlanCompleted, events.TypePolicyGateTriggered:
			out = append(out, typ)
		}
	}
	return out
}

func TestHandleText_OpenChrome(t *testing.T) {
	f := newFixture(t)

	resp, err := f.a.HandleText(t.Context(), "open chrome")
	require.NoError(t, err)
	f.flush(t)

	require.Nil(t, resp.Clarification)
	require.Len(t, resp.Plan.Steps, 1)
	assert.Equal(t, planner.LaunchApp, resp.Plan.Steps[0].Action)
	assert.Equal(t, "chrome", resp.Plan.Steps[0].Params["app_name"])
	assert.GreaterOrEqual(t, resp.Multi.Segments[0].Result.Command.Confidence, float32(0.95))

	assert.Equal(t, []string{"google-chrome"}, f.run.Commands())
	assert.Equal(t, []string{
		events.TypePlanStarted,
		events.TypeActionStarted,
		events.TypeActionCompleted,
		events.TypePlanCompleted,
	}, planTypes(f.rec))

	done := events.Of[events.PlanCompleted](f.rec)
	require.Len(t, done, 1)
	assert.True(t, done[0].Success)
	assert.Equal(t, 1, done[0].StepsCompleted)
	assert.Zero(t, done[0].StepsFailed)

	for _, env := range f.rec.Envelopes() {
		assert.Equal(t, resp.CorrelationID, env.CorrelationID.UUID)
	}
	assert.Equal(t, []string{"Opening chrome."}, f.speaker.Lines())
}

func TestHandleText_ParallelSegments(t *testing.T) {
	f := newFixture(t)

	resp, err := f.a.HandleText(t.Context(), "open chrome and play music")
	require.NoError(t, err)
	f.flush(t)

	require.Len(t, resp.Plan.Steps, 2)
	require.Len(t, resp.Plan.ParallelGroups, 1)
	assert.ElementsMatch(t, []int{0, 1}, resp.Plan.ParallelGroups[0])
	assert.ElementsMatch(t, []string{"google-chrome", "playerctl play-pause"}, f.run.Commands())

	done := events.Of[events.PlanCompleted](f.rec)
	require.Len(t, done, 1)
	assert.Equal(t, 2, done[0].StepsCompleted)
}

func TestPreview_TemporalWait(t *testing.T) {
	f := newFixture(t)

	resp, err := f.a.Preview(t.Context(), "mute after 10 minutes")
	require.NoError(t, err)

	require.Len(t, resp.Plan.Steps, 2)
	assert.Equal(t, planner.Wait, resp.Plan.Steps[0].Action)
	assert.Equal(t, "600", resp.Plan.Steps[0].Params["duration"])
	assert.Equal(t, planner.SystemControl, resp.Plan.Steps[1].Action)
	assert.Equal(t, "mute", resp.Plan.Steps[1].Params["action"])
	assert.Contains(t, resp.Plan.Steps[1].Preconditions, planner.AfterStep(0))

	require.Len(t, resp.Result.Messages, 2)
	for _, m := range resp.Result.Messages {
		assert.Contains(t, m, executor.DryRunPrefix)
	}
	assert.Empty(t, f.run.Commands())
}

func TestHandleText_ResolvesPronounFromPreviousCommand(t *testing.T) {
	f := newFixture(t)

	_, err := f.a.HandleText(t.Context(), "open chrome")
	require.NoError(t, err)

	resp, err := f.a.HandleText(t.Context(), "open it")
	require.NoError(t, err)

	assert.True(t, resp.Resolved)
	assert.Equal(t, "open chrome", resp.Text)
	require.Len(t, resp.Plan.Steps, 1)
	assert.Equal(t, planner.LaunchApp, resp.Plan.Steps[0].Action)
	assert.Equal(t, "chrome", resp.Plan.Steps[0].Params["app_name"])
	assert.Equal(t, []string{"google-chrome", "google-chrome"}, f.run.Commands())
}

func TestHandleText_LowConfidenceAsksForClarification(t *testing.T) {
	f := newFixture(t)

	resp, err := f.a.HandleText(t.Context(), "how tall is mount everest")
	require.NoError(t, err)
	f.flush(t)

	require.NotNil(t, resp.Clarification)
	assert.Nil(t, resp.Result)
	require.NotEmpty(t, resp.Plan.Steps)
	assert.Equal(t, planner.AnswerQuestion, resp.Plan.Steps[0].Action)

	asks := events.Of[events.ClarificationRequested](f.rec)
	require.Len(t, asks, 1)
	assert.Equal(t, "how tall is mount everest", asks[0].Command)
	assert.Less(t, asks[0].Confidence, float32(0.6))
	assert.NotEmpty(t, asks[0].Suggestions)
	assert.Empty(t, planTypes(f.rec))
	assert.Empty(t, f.misses.texts)

	require.Len(t, f.speaker.Lines(), 1)
	assert.Contains(t, f.speaker.Lines()[0], "Try:")
}

func TestHandleText_UnknownIsRecordedAsMiss(t *testing.T) {
	f := newFixture(t)

	resp, err := f.a.HandleText(t.Context(), "xyzzy plugh")
	require.NoError(t, err)

	require.NotNil(t, resp.Clarification)
	assert.Equal(t, intent.Unknown, resp.Multi.Segments[0].Result.Command.Intent)
	assert.Equal(t, []string{"xyzzy plugh"}, f.misses.texts)
	assert.Contains(t, resp.Reply, "didn't understand")
}

func TestHandleText_InheritsCorrelation(t *testing.T) {
	f := newFixture(t)
	ctx, corr := correlate(t.Context())

	resp, err := f.a.HandleText(ctx, "open chrome")
	require.NoError(t, err)
	assert.Equal(t, corr, resp.CorrelationID)
	assert.Equal(t, corr, resp.Result.CorrelationID)
}

func TestJoinMessages(t *testing.T) {
	assert.Equal(t, "", joinMessages(nil))
	assert.Equal(t, "Opening chrome. Toggled playback.", joinMessages([]string{"Opening chrome", "", "Toggled playback."}))
}
