package prompts

import (
	"math/rand/v2"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinThemes = 0
	MaxThemes = 4
)

// ThemeSamples is the catalog offered to players. Themes outside it must be
// verified before a game can use them.
var ThemeSamples = []string{
	"Action",
	"Adventure",
	"Comedy",
	"Crime",
	"Drama",
	"Fantasy",
	"Historical",
	"Horror",
	"Mystery",
	"Romance",
	"Science Fiction",
	"Thriller",
	"Lovecraftian",
	"Cyberpunk",
}

// NormalizeThemes trims and title-cases themes so "science  fiction" matches
// the catalog entry "Science Fiction". Empty entries are dropped.
func NormalizeThemes(themes []string) []string {
	caser := cases.Title(language.English)
	out := make([]string, 0, len(themes))
	for _, t := range themes {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		out = append(out, caser.String(t))
	}
	return lo.Uniq(out)
}

// IsSampleTheme reports whether a normalized theme is in the catalog.
func IsSampleTheme(theme string) bool {
	return lo.Contains(ThemeSamples, theme)
}

// UnknownThemes returns the themes that are not in the catalog, in order.
func UnknownThemes(themes []string) []string {
	return lo.Reject(themes, func(t string, _ int) bool {
		return IsSampleTheme(t)
	})
}

// RandomThemes picks a random, non-empty set of distinct catalog themes.
func RandomThemes() []string {
	n := rand.IntN(len(ThemeSamples)) + 1
	return lo.Samples(ThemeSamples, n)
}
