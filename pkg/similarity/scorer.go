// Package similarity scores how likely two named, typed schema items are to
// be the same item under a different name. Rename detection ranks
// (removed, added) candidate pairs by this score.
//
// The score is a weighted blend of two string metrics over the names:
// Jaro-Winkler (transposition-aware, prefix-weighted) at 0.7 and normalized
// Levenshtein at 0.3. When the two field types are not plausibly
// interchangeable the blended score is multiplied by a dampening factor
// instead of being rejected outright, so a renamed-and-retyped field is still
// detectable, just less confidently.
//
// Scoring is a pure function: identical inputs always produce identical
// scores, which migration generation relies on for reproducibility across
// runs and machines.
package similarity

import (
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/automigrate/pkg/state"
)

// Default tuning values.
const (
	DefaultRenameThreshold = 0.7
	DefaultTypeDampening   = 0.5

	jaroWinklerWeight = 0.7
	levenshteinWeight = 0.3

	// nameScoreCacheSize bounds the memo of name-pair scores. Large projects
	// reuse the same column names across many models.
	nameScoreCacheSize = 4096
)

// Config tunes rename detection.
type Config struct {
	// RenameThreshold is the minimum blended score for a (removed, added)
	// pair to be accepted as a rename. The comparison is inclusive: a score
	// exactly at the threshold is accepted.
	RenameThreshold float64
	// TypeDampening multiplies the name score when the two field types are
	// incompatible.
	TypeDampening float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		RenameThreshold: DefaultRenameThreshold,
		TypeDampening:   DefaultTypeDampening,
	}
}

type namePair struct {
	old string
	new string
}

// Scorer computes similarity scores between schema items. The zero value is
// not usable; construct with NewScorer.
type Scorer struct {
	config      Config
	jaroWinkler *metrics.JaroWinkler
	levenshtein *metrics.Levenshtein
	nameScores  *lru.Cache[namePair, float64]
}

// NewScorer creates a scorer with the given tuning.
func NewScorer(config Config) *Scorer {
	if config.RenameThreshold <= 0 {
		config.RenameThreshold = DefaultRenameThreshold
	}
	if config.TypeDampening <= 0 {
		config.TypeDampening = DefaultTypeDampening
	}
	cache, _ := lru.New[namePair, float64](nameScoreCacheSize)
	return &Scorer{
		config:      config,
		jaroWinkler: metrics.NewJaroWinkler(),
		levenshtein: metrics.NewLevenshtein(),
		nameScores:  cache,
	}
}

// Config returns the scorer's tuning.
func (s *Scorer) Config() Config { return s.config }

// NameScore blends the two string metrics over a pair of names, returning a
// value in [0, 1].
func (s *Scorer) NameScore(oldName, newName string) float64 {
	if oldName == newName {
		return 1.0
	}
	key := namePair{old: oldName, new: newName}
	if score, ok := s.nameScores.Get(key); ok {
		return score
	}
	jw := strutil.Similarity(oldName, newName, s.jaroWinkler)
	lev := strutil.Similarity(oldName, newName, s.levenshtein)
	score := jaroWinklerWeight*jw + levenshteinWeight*lev
	s.nameScores.Add(key, score)
	return score
}

// FieldScore scores a (removed, added) field pair in [0, 1]. A type mismatch
// dampens the name score rather than disqualifying the pair.
func (s *Scorer) FieldScore(oldField, newField *state.FieldState) float64 {
	score := s.NameScore(oldField.Name, newField.Name)
	if !oldField.Type.CompatibleWith(newField.Type) {
		score *= s.config.TypeDampening
	}
	return score
}

// ModelScore scores a (removed, added) model pair in [0, 1] by comparing the
// two field sets in aggregate. Model renames are judged on contents, not on
// the names themselves: two models with the same columns are the same table
// regardless of what it was renamed to, and a coincidental name match with
// different columns is not a rename.
func (s *Scorer) ModelScore(oldModel, newModel *state.ModelState) float64 {
	return fieldSetOverlap(oldModel, newModel)
}

// fieldSetOverlap returns the Jaccard overlap of the two models' fields,
// counting a field as shared when name and type both match.
func fieldSetOverlap(oldModel, newModel *state.ModelState) float64 {
	if len(oldModel.Fields) == 0 && len(newModel.Fields) == 0 {
		return 1.0
	}
	if len(oldModel.Fields) == 0 || len(newModel.Fields) == 0 {
		return 0.0
	}
	shared := 0
	for _, oldField := range oldModel.Fields {
		newField := newModel.Field(oldField.Name)
		if newField != nil && oldField.Type.Equal(newField.Type) {
			shared++
		}
	}
	union := len(oldModel.Fields) + len(newModel.Fields) - shared
	return float64(shared) / float64(union)
}

// CommonPrefixLen returns the length of the shared prefix of two names. Used
// as the first tie-break when two candidate pairs score equally.
func CommonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
