package abstract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReportTransitions(t *testing.T) {
	report := newRunReport("tickets", "messages", "customers")

	assert.True(t, report.start("tickets"))
	assert.True(t, report.start("tickets"), "running streams accept more invocations")
	report.complete("tickets")
	assert.Equal(t, StatusCompleted, report.Status("tickets"))
	assert.False(t, report.start("tickets"), "completed is terminal")
	assert.False(t, report.fail("tickets", errors.New("late")))

	boom := errors.New("boom")
	assert.True(t, report.fail("messages", boom))
	assert.False(t, report.fail("messages", errors.New("second")), "first error wins")
	report.skip("messages", "ignored")
	assert.Equal(t, StatusFailed, report.Status("messages"))
	assert.False(t, report.Active("messages"))

	report.skip("customers", "ancestor failed")
	assert.Equal(t, StatusSkipped, report.Status("customers"))

	entry, found := report.Get("tickets")
	require.True(t, found)
	assert.Equal(t, int64(2), entry.Invocations)

	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, err.Error(), "second")
}

func TestRunReportCompletesUnstartedChild(t *testing.T) {
	report := newRunReport("messages")
	report.complete("messages")
	assert.Equal(t, StatusCompleted, report.Status("messages"))
	assert.NoError(t, report.Err())
}

func TestRunReportCounters(t *testing.T) {
	report := newRunReport("tickets")
	report.start("tickets")
	report.page("tickets", 3, 1)
	report.page("tickets", 2, 0)

	entry, _ := report.Get("tickets")
	assert.Equal(t, int64(5), entry.Records)
	assert.Equal(t, int64(1), entry.Skipped)
	assert.Equal(t, int64(2), entry.Pages)
	assert.Equal(t, []string{"tickets"}, []string{report.Streams()[0].Stream})
	assert.Equal(t, "", string(report.Status("unknown")))
}
