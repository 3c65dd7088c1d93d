package security

import (
	"os"
	"strings"
)

// withheldEnv names the variables never passed to the backend. A trailing
// "*" matches any suffix. ANTHROPIC_* and CLAUDE_* credentials stay: the
// CLI needs them to log in. CLAUDECODE and CLAUDE_CODE_ENTRYPOINT mark a
// nested CLI session, which the child refuses to start inside.
var withheldEnv = []string{
	"RELAYCLAW_*",
	"TELEGRAM_*",
	"OPENAI_*",
	"AWS_SECRET*",
	"AWS_SESSION_TOKEN",
	"SLACK_TOKEN",
	"SLACK_BOT_TOKEN",
	"DISCORD_TOKEN",
	"GITHUB_TOKEN",
	"GH_TOKEN",
	"GITLAB_TOKEN",
	"SMTP_PASSWORD",
	"DATABASE_URL",
	"DB_PASSWORD",
	"REDIS_PASSWORD",
	"CLAUDECODE",
	"CLAUDE_CODE_ENTRYPOINT",
}

// minEnvSecretLen is the shortest secret scrubbed from passed-through values.
const minEnvSecretLen = 8

// SanitizedEnv is the environment for child processes: os.Environ minus
// the withheld variables, with each of secrets scrubbed from the values
// that remain.
func SanitizedEnv(secrets ...string) []string {
	return filterEnv(os.Environ(), secrets)
}

func filterEnv(env, secrets []string) []string {
	var scrub []string
	for _, s := range secrets {
		if len(s) >= minEnvSecretLen {
			scrub = append(scrub, s, RedactPlaceholder)
		}
	}
	replacer := strings.NewReplacer(scrub...)

	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || withheld(name) {
			continue
		}
		out = append(out, replacer.Replace(kv))
	}
	return out
}

// withheld matches name against withheldEnv, ignoring case.
func withheld(name string) bool {
	name = strings.ToUpper(name)
	for _, rule := range withheldEnv {
		if prefix, wild := strings.CutSuffix(rule, "*"); wild {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		} else if name == rule {
			return true
		}
	}
	return false
}
