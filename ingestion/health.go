package ingestion

import "github.com/repoforge/transformer/domain"

// healthBase is the starting score for a snapshot with no hygiene flags
// set. healthPerFlag is added once per recognized hygiene flag, up to
// six flags (readme, tests, ci, dockerfile, license, env example).
// fileCountBonusMax bounds how much a larger codebase can add on top,
// scaled linearly up to fileCountBonusAt files.
const (
	healthBase          = 30.0
	healthPerFlag       = 10.0
	fileCountBonusMax   = 10.0
	fileCountBonusAt    = 50.0
)

// initialHealthScore implements §8's "Health scoring" testable property:
// no hygiene flags -> 30.0; has_readme alone -> 40.0; fully hygienic with
// 50 files -> >= 75.0. Bounded to [0, 100].
func initialHealthScore(h hygieneFlags, fileCount int) float64 {
	score := healthBase
	for _, set := range []bool{h.readme, h.tests, h.ci, h.dockerfile, h.license, h.envExample} {
		if set {
			score += healthPerFlag
		}
	}

	bonus := fileCountBonusMax * float64(fileCount) / fileCountBonusAt
	if bonus > fileCountBonusMax {
		bonus = fileCountBonusMax
	}
	score += bonus

	return domain.ClampScore(score, 0, 100)
}
