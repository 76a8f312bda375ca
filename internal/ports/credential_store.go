package ports

import (
	"context"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
)

// CredentialStore persists per-server login tokens and the one-shot pending
// resume record. Get returns domain.ErrNoCredential when no token is cached
// for the server; ConsumePendingResume returns domain.ErrNoPendingResume
// when no record exists and clears the record it returns.
type CredentialStore interface {
	Get(ctx context.Context, serverURL string) (string, error)
	Put(ctx context.Context, serverURL, token string) error
	PutPendingResume(ctx context.Context, record domain.PendingResumeRecord) error
	ConsumePendingResume(ctx context.Context) (domain.PendingResumeRecord, error)
}
