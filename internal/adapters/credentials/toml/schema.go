package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version       int                      `toml:"version"`
	Servers       []serverCredentialSchema `toml:"servers"`
	PendingResume *pendingResumeSchema     `toml:"pending_resume,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported credentials schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type serverCredentialSchema struct {
	ServerURL  string `toml:"server_url"`
	LoginToken string `toml:"login_token"`
}

type pendingResumeSchema struct {
	ServerURL string `toml:"server_url"`
	RoomToken string `toml:"room_token"`
	RoomID    string `toml:"room_id"`
	Host      string `toml:"host"`
}
