package config

import "gopkg.in/yaml.v3"

// Module IDs owned by configuration sections.
const (
	TelegramModule = "channel.telegram"
	HistoryModule  = "history.sqlite"
)

// ModuleConfigs maps module IDs to their raw YAML sections. Sections that
// are absent are omitted; history is included with an empty node unless
// explicitly disabled.
func (c *Config) ModuleConfigs() map[string]yaml.Node {
	out := make(map[string]yaml.Node)
	if c.Telegram.Kind != 0 {
		out[TelegramModule] = c.Telegram
	}
	if historyEnabled(c.History) {
		out[HistoryModule] = c.History
	}
	return out
}

// Resolve returns the module IDs to load, in start order: history before
// the transport, so turns are recorded from the first message on.
func Resolve(cfg *Config) []string {
	mods := cfg.ModuleConfigs()
	var ids []string
	for _, id := range []string{HistoryModule, TelegramModule} {
		if _, ok := mods[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func historyEnabled(node yaml.Node) bool {
	if node.Kind == 0 {
		return true
	}
	var section struct {
		Enabled *bool `yaml:"enabled"`
	}
	if err := node.Decode(&section); err != nil {
		// Let the module report the decode error.
		return true
	}
	return enabled(section.Enabled)
}
