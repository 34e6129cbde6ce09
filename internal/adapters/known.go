package adapters

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultFuzzyThreshold is the least similarity at which a spoken name
// still resolves to a known alias.
const DefaultFuzzyThreshold = 0.75

var defaultApps = map[string]string{
	"chrome":             "google-chrome",
	"google chrome":      "google-chrome",
	"chromium":           "chromium",
	"firefox":            "firefox",
	"terminal":           "x-terminal-emulator",
	"files":              "nautilus",
	"file manager":       "nautilus",
	"spotify":            "spotify",
	"code":               "code",
	"visual studio code": "code",
	"vs code":            "code",
	"calculator":         "gnome-calculator",
	"text editor":        "gedit",
	"settings":           "gnome-control-center",
	"thunderbird":        "thunderbird",
	"slack":              "slack",
	"discord":            "discord",
	"vlc":                "vlc",
}

type AppMatch struct {
	Alias      string
	Command    string
	Similarity float32
}

// KnownApps maps spoken application names onto commands. Lookups are
// exact first, then fuzzy by edit distance.
type KnownApps struct {
	mu        sync.RWMutex
	aliases   map[string]string
	Threshold float32
}

func NewKnownApps(aliases map[string]string) *KnownApps {
	k := &KnownApps{aliases: map[string]string{}, Threshold: DefaultFuzzyThreshold}
	for a, c := range aliases {
		k.Add(a, c)
	}
	return k
}

func DefaultKnownApps() *KnownApps { return NewKnownApps(defaultApps) }

func normName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (k *KnownApps) Add(alias, command string) {
	alias = normName(alias)
	if alias == "" || command == "" {
		return
	}
	k.mu.Lock()
	k.aliases[alias] = command
	k.mu.Unlock()
}

// AddSynonyms registers grammar synonyms: the term resolves to its first
// expansion and every expansion resolves to itself.
func (k *KnownApps) AddSynonyms(syn map[string][]string) {
	for term, exps := range syn {
		if len(exps) == 0 {
			continue
		}
		if _, ok := k.Lookup(term); !ok {
			k.Add(term, exps[0])
		}
		for _, e := range exps {
			if _, ok := k.Lookup(e); !ok {
				k.Add(e, e)
			}
		}
	}
}

// Lookup resolves an exact alias.
func (k *KnownApps) Lookup(name string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	c, ok := k.aliases[normName(name)]
	return c, ok
}

func similarity(a, b string) float32 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float32(levenshtein.ComputeDistance(a, b))/float32(n)
}

// Rank returns up to n aliases ordered by similarity to name.
func (k *KnownApps) Rank(name string, n int) []AppMatch {
	name = normName(name)
	k.mu.RLock()
	out := make([]AppMatch, 0, len(k.aliases))
	for _, alias := range slices.Sorted(maps.Keys(k.aliases)) {
		out = append(out, AppMatch{Alias: alias, Command: k.aliases[alias], Similarity: similarity(name, alias)})
	}
	k.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b AppMatch) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Resolve finds the command for a spoken name.
func (k *KnownApps) Resolve(name string) (AppMatch, bool) {
	if c, ok := k.Lookup(name); ok {
		return AppMatch{Alias: normName(name), Command: c, Similarity: 1}, true
	}
	best := k.Rank(name, 1)
	if len(best) == 0 || best[0].Similarity < k.Threshold {
		return AppMatch{}, false
	}
	return best[0], true
}

func (k *KnownApps) IsKnown(name string) bool {
	_, ok := k.Resolve(name)
	return ok
}
