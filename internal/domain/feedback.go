package domain

// FeedbackType mirrors the backend's feedback categories.
type FeedbackType string

const (
	FeedbackResponseRating   FeedbackType = "response_rating"
	FeedbackNavigationRating FeedbackType = "navigation_rating"
	FeedbackGeneral          FeedbackType = "general_feedback"
)

const (
	MinRating = 1
	MaxRating = 5
)

// FeedbackRecord is a star rating tied to one bot message.
type FeedbackRecord struct {
	SessionID   string
	MessageID   string
	Type        FeedbackType
	Rating      int
	Comment     string // empty means no comment
	UserQuery   string
	BotResponse string
	Language    string
}

// FeedbackAck is the backend acknowledgement of a submitted record.
type FeedbackAck struct {
	FeedbackID string
	Message    string
}
