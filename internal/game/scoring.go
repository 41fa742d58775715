package game

import "math"

const (
	MaxHints      = 3
	HintCost      = 10
	BasePoints    = 1000
	MinPoints     = 100
	TimeBonusCap  = 300
	HintPenalty   = 100
	PointsPerCoin = 100
)

var difficultyMultipliers = map[string]float64{
	"LEVEL_1": 1,
	"LEVEL_2": 1.25,
	"LEVEL_3": 1.5,
	"LEVEL_4": 1.75,
	"LEVEL_5": 2,
}

// DifficultyMultiplier maps a decoded difficulty label to its score
// multiplier. Unknown labels score as LEVEL_1.
func DifficultyMultiplier(label string) float64 {
	if m, ok := difficultyMultipliers[label]; ok {
		return m
	}
	return 1
}

// ComputeScore awards points for a solve: a base, a bonus of two points per
// second under the time cap, minus a penalty per hint, scaled by difficulty
// and never below MinPoints.
func ComputeScore(difficulty string, timeUsed, hintsUsed int) int {
	bonus := max(0, TimeBonusCap-timeUsed) * 2
	raw := float64(BasePoints+bonus-hintsUsed*HintPenalty) * DifficultyMultiplier(difficulty)
	return max(MinPoints, int(math.Round(raw)))
}

func CoinsFor(points int) int {
	return points / PointsPerCoin
}
