package scoring

import "github.com/Elizabethomito/greenquest/internal/models"

// Status thresholds on the 0..100 aiScore.
const (
	PendingThreshold  = 30
	VerifiedThreshold = 60
)

// ClassifyStatus maps an aiScore to an activity status.
func ClassifyStatus(aiScore int) models.ActivityStatus {
	switch {
	case aiScore >= VerifiedThreshold:
		return models.StatusVerified
	case aiScore >= PendingThreshold:
		return models.StatusPending
	default:
		return models.StatusFlagged
	}
}

// EligibleForChallenge reports whether a submission may auto-complete a
// daily challenge.
func EligibleForChallenge(matches bool, aiScore int) bool {
	return matches && aiScore >= VerifiedThreshold
}
