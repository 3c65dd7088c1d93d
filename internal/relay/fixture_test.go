package relay_test

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/flemzord/relayclaw/internal/backend/backendtest"
	"github.com/flemzord/relayclaw/internal/backlog"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/cron/crontest"
	"github.com/flemzord/relayclaw/internal/memory"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/timezone"
)

var fixtureStart = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type fixtureConfig struct {
	noMemory  bool
	noJobs    bool
	noBacklog bool
	maxFacts  int
	zoneRoots []string
	addDirs   []string
}

type fixture struct {
	dir     string
	clock   *crontest.Clock
	memory  *memory.Store
	jobs    *cron.JobStore
	backlog *backlog.Store
	tz      *timezone.Setting
	ops     *relay.Ops
	backend *backendtest.Fake
	orch    *relay.Orchestrator
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, fake *backendtest.Fake, cfg fixtureConfig) *fixture {
	t.Helper()

	dir := t.TempDir()
	logger := discardLogger()
	f := &fixture{
		dir:     dir,
		clock:   crontest.NewClock(fixtureStart),
		backend: fake,
		tz:      timezone.OpenSetting(filepath.Join(dir, "timezone.json"), "UTC", logger),
	}

	if !cfg.noMemory {
		f.memory = memory.Open(memory.Options{
			Path:     filepath.Join(dir, "memory.json"),
			MaxFacts: cfg.maxFacts,
			Logger:   logger,
			Now:      f.clock.Now,
		})
	}
	if !cfg.noJobs {
		f.jobs = cron.OpenStore(cron.StoreOptions{
			Path:   filepath.Join(dir, "jobs.json"),
			Logger: logger,
			Now:    f.clock.Now,
		})
	}
	if !cfg.noBacklog {
		f.backlog = backlog.Open(filepath.Join(dir, "backlog.json"), logger)
	}

	f.ops = relay.NewOps(relay.OpsOptions{
		Memory:   f.memory,
		Jobs:     f.jobs,
		Backlog:  f.backlog,
		Timezone: f.tz,
		Resolver: timezone.NewResolver(cfg.zoneRoots...),
		Logger:   logger,
	})
	f.orch = relay.New(relay.Options{
		Ops:     f.ops,
		Invoker: fake,
		AddDirs: cfg.addDirs,
		Logger:  logger,
		Now:     f.clock.Now,
	})
	return f
}
