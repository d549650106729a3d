package notify

import "fmt"

// Tier 通知分级。
type Tier string

const (
	TierAuto     Tier = "AUTO"
	TierReview   Tier = "REVIEW"
	TierSuppress Tier = "SUPPRESS"
)

const (
	DefaultConfidenceThreshold  = 0.8
	DefaultHumanReviewThreshold = 0.6
)

// Thresholds: Auto 即 confidence_threshold，Review 即 human_review_threshold。
type Thresholds struct {
	Auto   float64
	Review float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Auto: DefaultConfidenceThreshold, Review: DefaultHumanReviewThreshold}
}

func (t Thresholds) Validate() error {
	if t.Review < 0 || t.Auto > 1 || t.Review > t.Auto {
		return fmt.Errorf("阈值需满足 0 <= human_review_threshold(%.2f) <= confidence_threshold(%.2f) <= 1", t.Review, t.Auto)
	}
	return nil
}

// Route 纯函数。边界值归入更高一级：confidence == Auto 为 AUTO，== Review 为 REVIEW。
func Route(confidence float64, t Thresholds) Tier {
	switch {
	case confidence >= t.Auto:
		return TierAuto
	case confidence >= t.Review:
		return TierReview
	default:
		return TierSuppress
	}
}
