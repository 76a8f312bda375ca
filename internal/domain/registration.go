package domain

// RegistrationTask carries the parameters of one advisory registration
// announcement to the external registry. It is never persisted; a crash
// before delivery drops the announcement.
type RegistrationTask struct {
	InstanceID string
	RoomID     string
	ServerURL  string
}
