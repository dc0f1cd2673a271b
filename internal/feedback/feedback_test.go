package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSubmit_RejectsMissingRuleID(t *testing.T) {
	store := New(nil, nil)
	err := store.Submit(context.Background(), Item{Kind: KindTruePositive})
	assert.Error(t, err)
}

func TestSubmit_RejectsUnknownKind(t *testing.T) {
	store := New(nil, nil)
	err := store.Submit(context.Background(), Item{RuleID: "R1", Kind: Kind("bogus")})
	assert.Error(t, err)
}

func TestSubmit_RejectsOutOfRangeConfidence(t *testing.T) {
	store := New(nil, nil)
	err := store.Submit(context.Background(), Item{RuleID: "R1", Kind: KindTruePositive, Confidence: 1.5})
	assert.Error(t, err)
}

func TestSubmit_FillsIDAndTimestampWhenAbsent(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	store := New(nil, fixedClock(now))

	err := store.Submit(context.Background(), Item{RuleID: "R1", Kind: KindTruePositive})
	require.NoError(t, err)

	summary := store.GetRuleFeedbackSummary("R1")
	require.Equal(t, 1, summary.TotalItems)
	assert.Equal(t, now, summary.LastFeedback)
}

func TestPerformance_UndefinedWithoutFeedback(t *testing.T) {
	store := New(nil, nil)
	_, ok := store.Performance("R1", 24)
	assert.False(t, ok)
}

func TestPerformance_MatchesFixedFormula(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	store := New(nil, fixedClock(now))
	ctx := context.Background()

	// 6 true positives, 2 false positives, 1 benign, 1 missed.
	kinds := []Kind{
		KindTruePositive, KindTruePositive, KindTruePositive,
		KindTruePositive, KindTruePositive, KindTruePositive,
		KindFalsePositive, KindFalsePositive,
		KindBenignPositive,
		KindMissedDetection,
	}
	for i, k := range kinds {
		require.NoError(t, store.Submit(ctx, Item{
			RuleID: "R1", Kind: k, Source: "analyst", FeedbackID: string(rune('a' + i)),
		}))
	}

	perf, ok := store.Performance("R1", 24)
	require.True(t, ok)

	assert.Equal(t, 9, perf.TotalAlerts) // tp+fp+bp = 6+2+1
	assert.InDelta(t, 6.0/9.0, perf.Precision, 1e-9)
	assert.InDelta(t, 6.0/7.0, perf.Recall, 1e-9) // tp/(tp+missed) = 6/7
	wantF1 := 2 * perf.Precision * perf.Recall / (perf.Precision + perf.Recall)
	assert.InDelta(t, wantF1, perf.F1, 1e-9)

	assert.GreaterOrEqual(t, perf.Precision, 0.0)
	assert.LessOrEqual(t, perf.Precision, 1.0)
	assert.GreaterOrEqual(t, perf.F1, 0.0)
	assert.LessOrEqual(t, perf.F1, 1.0)
}

func TestAlertVolumeScore_PenalizesSilence(t *testing.T) {
	score := alertVolumeScore(1, 24*30) // 1 alert across 30 days ~ 0.033/day
	assert.Less(t, score, 1.0)
}

func TestAlertVolumeScore_PenalizesNoise(t *testing.T) {
	score := alertVolumeScore(5000, 24) // 5000/day, way above 50
	assert.Less(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.1)
}

func TestAlertVolumeScore_MiddleBandIsFullScore(t *testing.T) {
	score := alertVolumeScore(24, 24) // 24/day, inside [0.1, 50]
	assert.Equal(t, 1.0, score)
}

func TestReport_ClassifiesHighAndPoorPerformers(t *testing.T) {
	store := New(nil, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Submit(ctx, Item{RuleID: "GOOD", Kind: KindTruePositive}))
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Submit(ctx, Item{RuleID: "BAD", Kind: KindFalsePositive}))
	}

	report := store.Report(nil, 24)
	assert.Contains(t, report.HighPerformers, "GOOD")
	assert.Contains(t, report.PoorPerformers, "BAD")
}

func TestIdentifyProblematic_RequiresMinimumAlertVolume(t *testing.T) {
	store := New(nil, nil)
	ctx := context.Background()
	require.NoError(t, store.Submit(ctx, Item{RuleID: "R1", Kind: KindFalsePositive}))

	problematic := store.IdentifyProblematic(24, 0.5, 10)
	assert.Empty(t, problematic, "single alert should not clear minAlerts threshold")

	problematic = store.IdentifyProblematic(24, 0.5, 1)
	assert.Contains(t, problematic, "R1")
}

func TestClearCache_RemovesInMemoryHistory(t *testing.T) {
	store := New(nil, nil)
	ctx := context.Background()
	require.NoError(t, store.Submit(ctx, Item{RuleID: "R1", Kind: KindTruePositive}))

	store.ClearCache()

	summary := store.GetRuleFeedbackSummary("R1")
	assert.Equal(t, 0, summary.TotalItems)
}

type fakeSink struct {
	items []Item
}

func (f *fakeSink) Read(ctx context.Context, since time.Time, ruleIDs []string) ([]Item, error) {
	var out []Item
	for _, item := range f.items {
		if item.Timestamp.Before(since) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeSink) Write(ctx context.Context, item Item) error {
	f.items = append(f.items, item)
	return nil
}

func TestCollect_MergesFromSink(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	sink := &fakeSink{items: []Item{
		{FeedbackID: "f1", RuleID: "R1", Kind: KindTruePositive, Timestamp: now.Add(-time.Hour)},
	}}
	store := New(sink, fixedClock(now))

	n, err := store.Collect(context.Background(), nil, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	summary := store.GetRuleFeedbackSummary("R1")
	assert.Equal(t, 1, summary.TotalItems)
}

func TestSubmit_MirrorsToSink(t *testing.T) {
	sink := &fakeSink{}
	store := New(sink, nil)

	err := store.Submit(context.Background(), Item{RuleID: "R1", Kind: KindTruePositive})
	require.NoError(t, err)
	assert.Len(t, sink.items, 1)
}
