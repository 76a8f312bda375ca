// Package registration reports freshly created rooms to an external
// registry. Delivery is advisory: the session works whether or not the
// registry ever hears about it.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
)

const maxRegistryResponseBytes = 1 << 16

// Policy bounds the retry schedule. The delay before attempt k (k >= 2) is
// min(InitialDelay * 2^(k-2), MaxDelay).
type Policy struct {
	MaxAttempts    uint64
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    20,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Notifier posts registration announcements to
// {baseURL}/api/instances/{instanceID}/oct-session with a JSON body of
// {roomId, serverUrl}. The room id rides in the path, not the body.
type Notifier struct {
	client  *http.Client
	baseURL string
	policy  Policy
	log     zerolog.Logger

	// timer overrides the backoff wait in tests.
	timer backoff.Timer

	wg sync.WaitGroup
}

func NewNotifier(client *http.Client, baseURL string, policy Policy, log zerolog.Logger) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	if policy.MaxAttempts == 0 {
		policy = DefaultPolicy()
	}
	return &Notifier{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  policy,
		log:     log,
	}
}

type announcement struct {
	RoomID    string `json:"roomId"`
	ServerURL string `json:"serverUrl"`
}

// Notify starts the delivery in the background and returns immediately. The
// context bounds the whole retry schedule (process shutdown stops it); the
// outcome never reaches the caller.
func (n *Notifier) Notify(ctx context.Context, task domain.RegistrationTask) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(ctx, task)
	}()
}

// Wait blocks until all in-flight deliveries have terminated.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, task domain.RegistrationTask) {
	endpoint := fmt.Sprintf("%s/api/instances/%s/oct-session", n.baseURL, url.PathEscape(task.InstanceID))

	body, err := json.Marshal(announcement{RoomID: task.RoomID, ServerURL: task.ServerURL})
	if err != nil {
		n.log.Error().Err(err).Msg("encode registration announcement")
		return
	}

	attempt := 0
	operation := func() error {
		attempt++
		return n.post(ctx, endpoint, body)
	}
	onRetry := func(err error, delay time.Duration) {
		n.log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Str("room_id", task.RoomID).
			Msg("registration attempt failed")
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(newBackOff(n.policy), n.policy.MaxAttempts-1), ctx)

	if n.timer != nil {
		err = backoff.RetryNotifyWithTimer(operation, schedule, onRetry, n.timer)
	} else {
		err = backoff.RetryNotify(operation, schedule, onRetry)
	}
	if err != nil {
		n.log.Error().
			Err(err).
			Int("attempts", attempt).
			Str("instance_id", task.InstanceID).
			Str("room_id", task.RoomID).
			Msg("registration abandoned")
		return
	}

	n.log.Info().
		Str("instance_id", task.InstanceID).
		Str("room_id", task.RoomID).
		Msg("session registered")
}

func (n *Notifier) post(ctx context.Context, endpoint string, body []byte) error {
	requestCtx, cancel := context.WithTimeout(ctx, n.policy.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create registration request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post registration: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRegistryResponseBytes))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("registry returned status %d", resp.StatusCode)
	}
	return nil
}

func newBackOff(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0
	return b
}
