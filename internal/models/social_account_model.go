package models

import "time"

type SocialAccount struct {
	ID              int64     `db:"id" json:"id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	CredentialRef   *int64    `db:"credential_ref" json:"credential_ref"`
	AccountStatus   string    `db:"account_status" json:"account_status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Credential holds an account's tokens, stored encrypted and referenced
// indirectly from social_accounts so refreshes never touch account rows.
type Credential struct {
	ID           int64     `db:"id" json:"id"`
	Platform     string    `db:"platform" json:"platform"`
	AccessToken  string    `db:"access_token" json:"access_token"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
