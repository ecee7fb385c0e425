package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"promoreel/internal/infra"
	"promoreel/internal/sqlinline"
)

// Store persists integration tokens for deployments where environment
// secrets are impractical (rotating publish tokens, shared staging keys).
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or empty when none is set.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the token for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.TrimSpace(strings.ToLower(provider))
	token = strings.TrimSpace(token)
	if provider == "" {
		return errors.New("provider is required")
	}
	if token == "" {
		return errors.New("token is required")
	}
	return s.upsert(ctx, provider, token, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
