package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postdeck/postdeck/internal/models"
)

type CredentialRepository interface {
	GetByRef(ctx context.Context, ref int64) (*models.Credential, error)
	ListExpiring(ctx context.Context, within time.Duration) ([]*models.Credential, error)
	SetToken(ctx context.Context, ref int64, accessToken, refreshToken string, expiresAt time.Time) error
}

type credentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) GetByRef(ctx context.Context, ref int64) (*models.Credential, error) {
	query := `
		SELECT id, platform, access_token, refresh_token, expires_at, created_at, updated_at
		FROM credentials WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, ref)

	var cred models.Credential
	err := row.Scan(&cred.ID, &cred.Platform, &cred.AccessToken, &cred.RefreshToken,
		&cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &cred, nil
}

func (r *credentialRepository) ListExpiring(ctx context.Context, within time.Duration) ([]*models.Credential, error) {
	query := `
		SELECT id, platform, access_token, refresh_token, expires_at, created_at, updated_at
		FROM credentials
		WHERE expires_at < $1
	`

	cutoff := time.Now().Add(within)
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var cred models.Credential
		err := rows.Scan(&cred.ID, &cred.Platform, &cred.AccessToken, &cred.RefreshToken,
			&cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		creds = append(creds, &cred)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return creds, nil
}

func (r *credentialRepository) SetToken(ctx context.Context, ref int64, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE credentials
		SET access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			expires_at = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, ref, accessToken, refreshToken, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
