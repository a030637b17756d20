package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"leavedesk/internal/platform/querier"
)

// reservationTTL bounds how long a reservation whose owner died (crash,
// lost connection) keeps blocking retries.
const reservationTTL = 2 * time.Minute

// PGIdempotencyStore keeps reservations and replayable responses in
// idempotency_keys. A row with a NULL response_json is a reservation.
type PGIdempotencyStore struct {
	db querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db}
}

func (s *PGIdempotencyStore) Reserve(ctx context.Context, key IdempotencyKey, requestHash string) (StoredResponse, bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO idempotency_keys (tenant_id, user_id, key, endpoint, request_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, user_id, key, endpoint) DO NOTHING`,
		key.TenantID, key.UserID, key.Key, key.Endpoint, requestHash,
	)
	if err != nil {
		return StoredResponse{}, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return StoredResponse{}, false, nil
	}

	var (
		storedHash string
		raw        []byte
		stale      bool
	)
	err = s.db.QueryRow(ctx,
		`SELECT request_hash, response_json, created_at < now() - make_interval(secs => $5)
		 FROM idempotency_keys
		 WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4`,
		key.TenantID, key.UserID, key.Key, key.Endpoint, reservationTTL.Seconds(),
	).Scan(&storedHash, &raw, &stale)
	if errors.Is(err, pgx.ErrNoRows) {
		// Released between the insert and the read.
		return StoredResponse{}, false, ErrIdempotencyInFlight
	}
	if err != nil {
		return StoredResponse{}, false, fmt.Errorf("load idempotency key: %w", err)
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	if raw == nil {
		if stale && s.takeOver(ctx, key) {
			return StoredResponse{}, false, nil
		}
		return StoredResponse{}, false, ErrIdempotencyInFlight
	}
	var resp StoredResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return StoredResponse{}, false, fmt.Errorf("decode stored response: %w", err)
	}
	return resp, true, nil
}

// takeOver refreshes an abandoned reservation. Only one caller wins.
func (s *PGIdempotencyStore) takeOver(ctx context.Context, key IdempotencyKey) bool {
	tag, err := s.db.Exec(ctx,
		`UPDATE idempotency_keys SET created_at = now()
		 WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
		   AND response_json IS NULL AND created_at < now() - make_interval(secs => $5)`,
		key.TenantID, key.UserID, key.Key, key.Endpoint, reservationTTL.Seconds(),
	)
	return err == nil && tag.RowsAffected() == 1
}

// Complete stores the response on the caller's reservation.
func (s *PGIdempotencyStore) Complete(ctx context.Context, key IdempotencyKey, requestHash string, resp StoredResponse) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE idempotency_keys SET response_json = $6
		 WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
		   AND request_hash = $5 AND response_json IS NULL`,
		key.TenantID, key.UserID, key.Key, key.Endpoint, requestHash, encoded,
	)
	if err != nil {
		return fmt.Errorf("store idempotency response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release drops an uncompleted reservation so the key can be retried.
func (s *PGIdempotencyStore) Release(ctx context.Context, key IdempotencyKey) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM idempotency_keys
		 WHERE tenant_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
		   AND response_json IS NULL`,
		key.TenantID, key.UserID, key.Key, key.Endpoint,
	)
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
