package channel

import "strings"

// AllowList controls which users may talk to a channel. An empty or nil
// AllowList denies everyone.
type AllowList struct {
	users map[string]struct{}
}

// NewAllowList creates an AllowList. Ids are trimmed and lowercased so
// IsAllowed can use direct map lookups.
func NewAllowList(users ...string) *AllowList {
	a := &AllowList{users: make(map[string]struct{}, len(users))}
	for _, u := range users {
		if u = normalize(u); u != "" {
			a.users[u] = struct{}{}
		}
	}
	return a
}

// IsAllowed reports whether the sender id is permitted.
func (a *AllowList) IsAllowed(senderID string) bool {
	if a == nil || len(a.users) == 0 {
		return false
	}
	_, ok := a.users[normalize(senderID)]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
