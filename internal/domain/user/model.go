package user

import "time"

// User is the profile record the engine touches: push delivery target and
// the rating aggregate. Identity itself comes from the token verifier.
type User struct {
	ID            string
	DisplayName   string
	Phone         string
	DeviceToken   string
	RatingAverage float64
	RatingCount   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FoldRating folds one more score into a running mean. RatingAverage is
// always the arithmetic mean of exactly RatingCount scores.
func FoldRating(average float64, count, score int) (float64, int) {
	return (average*float64(count) + float64(score)) / float64(count+1), count + 1
}
