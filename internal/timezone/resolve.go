package timezone

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ErrZoneNotFound is returned when no zone matches a query.
var ErrZoneNotFound = errors.New("timezone: zone not found")

// AmbiguousError is returned by Lookup when a query matches several zones.
type AmbiguousError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("timezone: %q matches %d zones", e.Query, len(e.Candidates))
}

// defaultRoots are the usual zoneinfo locations on Unix systems.
var defaultRoots = []string{
	"/usr/share/zoneinfo",
	"/usr/share/lib/zoneinfo",
	"/usr/lib/locale/TZ",
}

// segmentPattern matches one path component of an IANA zone name.
var segmentPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9_+\-]*$`)

// skipTopLevel lists zoneinfo subtrees that duplicate or alias real zones.
var skipTopLevel = map[string]bool{
	"posix":     true,
	"right":     true,
	"SystemV":   true,
	"Factory":   true,
	"localtime": true,
}

// fallbackZones is used when no zoneinfo tree is readable.
var fallbackZones = []string{
	"Africa/Cairo", "Africa/Johannesburg", "Africa/Lagos", "Africa/Nairobi",
	"America/Chicago", "America/Denver", "America/Los_Angeles", "America/Mexico_City",
	"America/New_York", "America/Sao_Paulo", "America/Toronto", "America/Vancouver",
	"Asia/Bangkok", "Asia/Dubai", "Asia/Hong_Kong", "Asia/Jakarta", "Asia/Kolkata",
	"Asia/Seoul", "Asia/Shanghai", "Asia/Singapore", "Asia/Tokyo",
	"Australia/Melbourne", "Australia/Perth", "Australia/Sydney",
	"Europe/Amsterdam", "Europe/Berlin", "Europe/Istanbul", "Europe/Lisbon",
	"Europe/London", "Europe/Madrid", "Europe/Moscow", "Europe/Paris",
	"Europe/Rome", "Europe/Stockholm", "Europe/Zurich",
	"Pacific/Auckland", "Pacific/Honolulu", "UTC",
}

// Resolver maps free-text queries such as "new york" to IANA zone names.
type Resolver struct {
	roots []string
	once  sync.Once
	zones []string
}

// NewResolver returns a Resolver that reads zone names from roots. With no
// roots, $ZONEINFO and the standard system locations are used.
func NewResolver(roots ...string) *Resolver {
	if len(roots) == 0 {
		if dir := os.Getenv("ZONEINFO"); dir != "" {
			roots = append(roots, dir)
		}
		roots = append(roots, defaultRoots...)
	}
	return &Resolver{roots: roots}
}

// Zones returns every known zone name, sorted.
func (r *Resolver) Zones() []string {
	r.once.Do(func() {
		r.zones = scanZones(r.roots)
		if len(r.zones) == 0 {
			r.zones = slices.Clone(fallbackZones)
		}
	})
	return r.zones
}

// Find returns the zones matching query, best tier only: an exact name
// match wins over a city match, which wins over a substring match. The
// query is case-insensitive and spaces stand for underscores.
func (r *Resolver) Find(query string) []string {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(query), " ", "_"))
	if normalized == "" {
		return nil
	}

	zones := r.Zones()
	var exact, city, substring []string
	for _, z := range zones {
		lower := strings.ToLower(z)
		switch {
		case lower == normalized:
			exact = append(exact, z)
		case lower[strings.LastIndex(lower, "/")+1:] == normalized:
			city = append(city, z)
		case strings.Contains(lower, normalized):
			substring = append(substring, z)
		}
	}

	switch {
	case len(exact) > 0:
		return exact
	case len(city) > 0:
		return city
	default:
		return substring
	}
}

// Lookup resolves query to a single zone. It returns ErrZoneNotFound when
// nothing matches and an *AmbiguousError when several zones do.
func (r *Resolver) Lookup(query string) (string, error) {
	matches := r.Find(query)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrZoneNotFound, query)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Query: query, Candidates: matches}
	}
}

func scanZones(roots []string) []string {
	seen := make(map[string]struct{})
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)
			top, _, _ := strings.Cut(rel, "/")
			if skipTopLevel[top] {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			for _, seg := range strings.Split(rel, "/") {
				if !segmentPattern.MatchString(seg) {
					return nil
				}
			}
			seen[rel] = struct{}{}
			return nil
		})
	}

	zones := make([]string, 0, len(seen))
	for z := range seen {
		zones = append(zones, z)
	}
	slices.Sort(zones)
	return zones
}
