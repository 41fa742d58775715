// Package puzzle decodes raw contract puzzles into the views the game
// engine plays with.
package puzzle

import (
	"context"
	"sort"
	"strings"

	"example.com/quadclue/internal/chain"
)

const PlaceholderImage = "/placeholder-image.png"

// View is an immutable decoded puzzle. AvailableLetters keeps the order and
// multiplicity published on chain.
type View struct {
	ID               uint64   `json:"id"`
	ImageRefs        []string `json:"imageRefs"`
	WordLength       int      `json:"wordLength"`
	AvailableLetters []string `json:"availableLetters"`
	Difficulty       string   `json:"difficulty"`
	Active           bool     `json:"active"`
	SolveCount       uint64   `json:"solveCount"`
}

type Source interface {
	Puzzles(ctx context.Context) ([]chain.RawPuzzle, error)
}

// Decode builds a View. A record whose id or word length cannot be parsed
// is rejected.
func Decode(raw chain.RawPuzzle) (View, bool) {
	id, ok := raw.ID.Uint64()
	if !ok {
		return View{}, false
	}
	wl, ok := raw.WordLength.Uint64()
	if !ok || wl > 64 {
		return View{}, false
	}

	v := View{
		ID:         id,
		WordLength: int(wl),
		Difficulty: raw.Difficulty.Text(),
		Active:     raw.Active,
	}
	v.SolveCount, _ = raw.SolveCount.Uint64()

	for _, h := range raw.ImageHashes {
		v.ImageRefs = append(v.ImageRefs, ImageURL(h.Text()))
	}
	for _, l := range raw.AvailableLetters {
		s := strings.ToUpper(l.Text())
		if len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z' {
			v.AvailableLetters = append(v.AvailableLetters, s)
		}
	}
	return v, true
}

// DecodeAll decodes every valid record and orders the result by id.
func DecodeAll(raws []chain.RawPuzzle) []View {
	out := make([]View, 0, len(raws))
	seen := make(map[uint64]struct{}, len(raws))
	for _, r := range raws {
		v, ok := Decode(r)
		if !ok {
			continue
		}
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ImageURL resolves a decoded image reference to something a browser can
// load.
func ImageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return PlaceholderImage
	case strings.HasPrefix(ref, "http"), strings.HasPrefix(ref, "/"):
		return ref
	case strings.ContainsAny(ref, " \t\r\n"):
		return PlaceholderImage
	default:
		return "/" + ref
	}
}
