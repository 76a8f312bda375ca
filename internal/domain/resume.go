package domain

// PendingResumeRecord is a one-shot note written when a guest joins a room,
// allowing the next process start to reconnect without a fresh join
// exchange. Reading it through the credential store clears it.
type PendingResumeRecord struct {
	ServerURL string
	RoomToken string
	RoomID    string
	Host      string
}
