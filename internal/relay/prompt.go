package relay

import (
	"fmt"
	"strings"
	"time"
)

// PromptContext is everything the prompt builder needs for one turn.
type PromptContext struct {
	// Channel names the transport in the preamble, e.g. "Telegram".
	Channel string
	Now     time.Time
	Zone    string
	// Memory is the rendered fact section; MemoryEnabled adds tool hints.
	Memory        string
	MemoryEnabled bool
	// JobCount is reported when SchedulingEnabled is set.
	JobCount          int
	SchedulingEnabled bool
	// Scheduled marks an automated run that may stay silent.
	Scheduled bool
	Text      string
}

// BuildPrompt composes the text sent to the backend.
func BuildPrompt(pc PromptContext) string {
	channel := pc.Channel
	if channel == "" {
		channel = "Telegram"
	}
	zone := pc.Zone
	if zone == "" {
		zone = "UTC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are responding via %s. Keep responses concise.\n\n", channel)
	fmt.Fprintf(&b, "Current time of your user: %s (%s)\n\n", pc.Now.Format("Monday, January 02, 2006, 03:04 PM"), zone)

	if pc.MemoryEnabled {
		b.WriteString(pc.Memory)
		b.WriteString("To remember an important fact about the user, call the remember_fact tool " +
			"or write [REMEMBER: fact]. To forget, call forget_memory with a keyword or index, " +
			"or write [FORGET: keyword].\n\n")
	}

	if pc.SchedulingEnabled {
		fmt.Fprintf(&b, "The user has %d scheduled task(s). Manage them with the cron tools "+
			"(add_cron_job, schedule_once, remove_cron_job, list_cron_jobs) or the tags "+
			"[CRON_ADD: min hour day month weekday | prompt], [SCHEDULE: YYYY-MM-DD HH:MM | prompt], "+
			"[CRON_REMOVE: n] and [CRON_LIST]. Times are in the user's timezone.\n\n", pc.JobCount)
	}

	if pc.Scheduled {
		b.WriteString("This is an automated scheduled task, not a live message. If there is nothing " +
			"worth telling the user, call the stay_silent tool or include [SILENT] in your reply " +
			"and no message will be sent.\n\n")
	}

	b.WriteString("User: ")
	b.WriteString(pc.Text)
	return b.String()
}
