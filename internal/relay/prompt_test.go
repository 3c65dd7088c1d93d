package relay

import (
	"strings"
	"testing"
	"time"
)

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 2, 15, 4, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pc      PromptContext
		want    []string
		notWant []string
	}{
		{
			name: "plain",
			pc:   PromptContext{Now: now, Text: "hello"},
			want: []string{
				"You are responding via Telegram. Keep responses concise.",
				"Current time of your user: Monday, February 02, 2026, 03:04 PM (UTC)",
				"User: hello",
			},
			notWant: []string{"remember_fact", "cron tools", "[SILENT]"},
		},
		{
			name: "memory and scheduling",
			pc: PromptContext{
				Channel:           "the console",
				Now:               now,
				Zone:              "Europe/Berlin",
				Memory:            "## Memory\n- likes coffee\n\n",
				MemoryEnabled:     true,
				JobCount:          2,
				SchedulingEnabled: true,
				Text:              "hi",
			},
			want: []string{
				"You are responding via the console.",
				"(Europe/Berlin)",
				"## Memory\n- likes coffee\n\n",
				"remember_fact",
				"forget_memory",
				"2 scheduled task(s)",
				"cron tools",
			},
			notWant: []string{"automated scheduled task"},
		},
		{
			name: "scheduled",
			pc:   PromptContext{Now: now, Scheduled: true, Text: "daily summary"},
			want: []string{"automated scheduled task", "[SILENT]", "stay_silent", "User: daily summary"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := BuildPrompt(tt.pc)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("prompt missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("prompt unexpectedly contains %q:\n%s", w, got)
				}
			}
			if !strings.HasSuffix(got, "User: "+tt.pc.Text) {
				t.Errorf("prompt does not end with the user text:\n%s", got)
			}
		})
	}
}
