package relay_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemzord/relayclaw/internal/backend/backendtest"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/directive"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/timezone"
)

func TestOps_Memory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &backendtest.Fake{}, fixtureConfig{maxFacts: 3})
	ops := f.ops

	got, err := ops.ListMemories()
	require.NoError(t, err)
	assert.Equal(t, "No memories stored.", got)

	for _, fact := range []string{"likes tea", "lives in Lyon", "tea before 9"} {
		_, err := ops.Remember(fact)
		require.NoError(t, err)
	}

	got, err = ops.Remember("LIKES TEA")
	require.NoError(t, err)
	assert.Equal(t, `Already remembered: "likes tea"`, got)

	got, err = ops.Remember("plays chess")
	require.NoError(t, err)
	assert.Equal(t, "Remembered: \"plays chess\"\n\nWarning: memory full (3). Oldest fact forgotten: \"likes tea\"", got)

	got, err = ops.ListMemories()
	require.NoError(t, err)
	assert.Equal(t, "Stored memories (3):\n\n1. lives in Lyon\n2. tea before 9\n3. plays chess", got)

	got, err = ops.Forget("1")
	require.NoError(t, err)
	assert.Equal(t, `Removed memory 1: "lives in Lyon"`, got)

	_, err = ops.Forget("9")
	require.Error(t, err)
	assert.Equal(t, "Invalid index 9. Valid range: 1-2.", relay.Describe(err))

	got, err = ops.Forget("TEA")
	require.NoError(t, err)
	assert.Equal(t, `Removed 1 memory matching "TEA".`, got)

	got, err = ops.Forget("tea")
	require.NoError(t, err)
	assert.Equal(t, `No memories matching "tea".`, got)

	// Signed numbers are keywords, as in the memory store.
	for _, selector := range []string{"-1", "+2"} {
		got, err = ops.Forget(selector)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("No memories matching %q.", selector), got)
	}
	assert.Equal(t, 2, f.memory.Len())
}

func TestOps_Scheduling(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &backendtest.Fake{}, fixtureConfig{})
	ops := f.ops

	got, err := ops.ListCron()
	require.NoError(t, err)
	assert.Equal(t, "No scheduled jobs.", got)

	got, err = ops.AddCron("0 9 * * 1-5", "standup notes")
	require.NoError(t, err)
	assert.Equal(t, "Cron job added: 0 9 * * 1-5 — standup notes", got)

	_, err = ops.AddCron("@daily", "nope")
	require.ErrorIs(t, err, cron.ErrInvalidSchedule)
	assert.Equal(t, "Invalid cron expression: @daily", relay.Describe(err))

	got, err = ops.ScheduleOnce("2026-02-01 18:30", "call mom")
	require.NoError(t, err)
	assert.Equal(t, "Scheduled one-time task: 2026-02-01 18:30 — call mom", got)

	_, err = ops.ScheduleOnce("2026-01-31 18:30", "too late")
	assert.Equal(t, "Datetime must be in the future.", relay.Describe(err))

	_, err = ops.ScheduleOnce("tomorrow", "vague")
	assert.Equal(t, "Invalid datetime: tomorrow. Use YYYY-MM-DD HH:MM or YYYY-MM-DDTHH:MM:SS.", relay.Describe(err))

	got, err = ops.ListCron()
	require.NoError(t, err)
	assert.Equal(t, "1. [CRON] 0 9 * * 1-5 — standup notes\n2. [ONCE] 2026-02-01 18:30 — call mom", got)

	_, err = ops.RemoveCron(3)
	assert.Equal(t, "Invalid index 3. Valid range: 1-2.", relay.Describe(err))

	got, err = ops.RemoveCron(1)
	require.NoError(t, err)
	assert.Equal(t, "Removed job 1: [CRON] 0 9 * * 1-5 — standup notes", got)
	assert.Equal(t, 1, f.jobs.Len())
}

func TestOps_ScheduleOnceUsesConfiguredZone(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &backendtest.Fake{}, fixtureConfig{})
	require.NoError(t, f.tz.Set("Asia/Tokyo"))

	// 2026-02-01 20:00 in Tokyo is 11:00 UTC, before the fixture clock.
	_, err := f.ops.ScheduleOnce("2026-02-01 20:00", "dinner")
	assert.Equal(t, "Datetime must be in the future.", relay.Describe(err))

	_, err = f.ops.ScheduleOnce("2026-02-01 22:00", "bed")
	require.NoError(t, err)
	jobs := f.jobs.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Asia/Tokyo", jobs[0].Timezone)

	require.NoError(t, f.tz.Set("UTC"))
	got, err := f.ops.ListCron()
	require.NoError(t, err)
	assert.Equal(t, "1. [ONCE] 2026-02-01 22:00 — bed (Asia/Tokyo)", got)
}

func TestOps_DisabledFeatures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &backendtest.Fake{}, fixtureConfig{noMemory: true, noJobs: true, noBacklog: true})
	ops := f.ops

	tests := []struct {
		name string
		call func() (string, error)
		want error
	}{
		{"remember", func() (string, error) { return ops.Remember("x") }, relay.ErrMemoryDisabled},
		{"forget", func() (string, error) { return ops.Forget("x") }, relay.ErrMemoryDisabled},
		{"list memories", ops.ListMemories, relay.ErrMemoryDisabled},
		{"add cron", func() (string, error) { return ops.AddCron("* * * * *", "x") }, relay.ErrSchedulingDisabled},
		{"schedule once", func() (string, error) { return ops.ScheduleOnce("2030-01-01 00:00", "x") }, relay.ErrSchedulingDisabled},
		{"remove cron", func() (string, error) { return ops.RemoveCron(1) }, relay.ErrSchedulingDisabled},
		{"list cron", ops.ListCron, relay.ErrSchedulingDisabled},
		{"list backlog", ops.ListBacklog, relay.ErrBacklogDisabled},
		{"clear backlog", ops.ClearBacklog, relay.ErrBacklogDisabled},
	}
	for _, tt := range tests {
		_, err := tt.call()
		assert.ErrorIs(t, err, tt.want, tt.name)
	}

	a := ops.Apply(directive.Directive{Kind: directive.KindRemember, Text: "x"})
	assert.ErrorIs(t, a.Err, relay.ErrMemoryDisabled)
	assert.Equal(t, "⚠ Memory is disabled.", a.Notice)
}

func TestOps_Backlog(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &backendtest.Fake{}, fixtureConfig{})
	ops := f.ops

	got, err := ops.ListBacklog()
	require.NoError(t, err)
	assert.Equal(t, "Backlog is empty.", got)

	_, err = f.backlog.Add("first")
	require.NoError(t, err)
	_, err = f.backlog.Add("second")
	require.NoError(t, err)

	got, err = ops.ListBacklog()
	require.NoError(t, err)
	assert.Contains(t, got, "Pending backlog items (2):\n\n1. [")
	assert.Contains(t, got, "] first\n2. [")

	got, err = ops.ClearBacklog()
	require.NoError(t, err)
	assert.Equal(t, "Backlog cleared.", got)
	assert.Zero(t, f.backlog.Len())
}

func writeZones(t *testing.T, names ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("TZif"), 0o644))
	}
	return root
}

func TestOps_SetTimezone(t *testing.T) {
	t.Parallel()

	root := writeZones(t, "Europe/Berlin", "Europe/Paris", "America/New_York", "UTC")
	f := newFixture(t, &backendtest.Fake{}, fixtureConfig{zoneRoots: []string{root}})
	ops := f.ops

	got, err := ops.SetTimezone("")
	require.NoError(t, err)
	assert.Equal(t, "Current timezone: UTC", got)

	got, err = ops.SetTimezone("new york")
	require.NoError(t, err)
	assert.Equal(t, "Timezone set to America/New_York.", got)
	assert.Equal(t, "America/New_York", f.tz.Name())

	_, err = ops.SetTimezone("europe")
	var ambiguous *timezone.AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, "Multiple timezones match \"europe\":\n- Europe/Berlin\n- Europe/Paris\nPlease be more specific.", relay.Describe(err))

	_, err = ops.SetTimezone("atlantis")
	require.ErrorIs(t, err, timezone.ErrZoneNotFound)
	assert.Equal(t, `Timezone not found: "atlantis"`, relay.Describe(err))
	assert.Equal(t, "America/New_York", f.tz.Name())

	reloaded := timezone.OpenSetting(filepath.Join(f.dir, "timezone.json"), "UTC", discardLogger())
	assert.Equal(t, "America/New_York", reloaded.Name())
	assert.Equal(t, "America/New_York", reloaded.In(time.Now()).Location().String())
}
