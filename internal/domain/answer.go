package domain

import "time"

// Answer is one question/answer pair of the questionnaire. Seq is 1-based and
// dense per user.
type Answer struct {
	UserID    string
	Seq       int
	Question  string
	Answer    string
	CreatedAt time.Time
}
