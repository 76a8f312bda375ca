// Package toml persists per-server login tokens and the one-shot pending
// resume record in a single TOML file.
package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

const (
	credentialsDirMode  = 0o700
	credentialsFileMode = 0o600
	credentialsDir      = ".oct"
	credentialsFile     = "credentials.toml"
	tempFilePattern     = ".credentials-*.toml.tmp"
)

type Store struct {
	path string
	mu   sync.RWMutex
}

var _ ports.CredentialStore = (*Store)(nil)

// DefaultPath resolves the credentials file under the user's home.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, credentialsDir, credentialsFile), nil
}

func NewStore(path string) *Store {
	return &Store{path: filepath.Clean(path)}
}

func (s *Store) Get(ctx context.Context, serverURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return "", err
	}

	for _, entry := range file.Servers {
		if entry.ServerURL == serverURL {
			return entry.LoginToken, nil
		}
	}

	return "", fmt.Errorf("%w: %s", domain.ErrNoCredential, serverURL)
}

func (s *Store) Put(ctx context.Context, serverURL, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	updated := false
	for i := range file.Servers {
		if file.Servers[i].ServerURL == serverURL {
			file.Servers[i].LoginToken = token
			updated = true
			break
		}
	}
	if !updated {
		file.Servers = append(file.Servers, serverCredentialSchema{ServerURL: serverURL, LoginToken: token})
	}

	return s.writeSchema(file)
}

func (s *Store) PutPendingResume(ctx context.Context, record domain.PendingResumeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	file.PendingResume = &pendingResumeSchema{
		ServerURL: record.ServerURL,
		RoomToken: record.RoomToken,
		RoomID:    record.RoomID,
		Host:      record.Host,
	}

	return s.writeSchema(file)
}

// ConsumePendingResume returns the pending resume record at most once: the
// record is cleared from the file before it is handed back.
func (s *Store) ConsumePendingResume(ctx context.Context) (domain.PendingResumeRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.PendingResumeRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.PendingResumeRecord{}, err
	}

	if file.PendingResume == nil {
		return domain.PendingResumeRecord{}, domain.ErrNoPendingResume
	}

	record := domain.PendingResumeRecord{
		ServerURL: file.PendingResume.ServerURL,
		RoomToken: file.PendingResume.RoomToken,
		RoomID:    file.PendingResume.RoomID,
		Host:      file.PendingResume.Host,
	}

	file.applyDefaults()
	file.PendingResume = nil
	if err := s.writeSchema(file); err != nil {
		return domain.PendingResumeRecord{}, err
	}

	return record, nil
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read credentials file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode credentials file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}

	return file, nil
}

func (s *Store) writeSchema(file fileSchema) error {
	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, credentialsDirMode); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp credentials file: %w", err)
	}
	if err := tmp.Chmod(credentialsFileMode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp credentials file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace credentials file: %w", err)
	}

	return nil
}
