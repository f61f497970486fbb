package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	config "github.com/postdeck/postdeck/configs"
	"github.com/postdeck/postdeck/internal/models"
	"github.com/postdeck/postdeck/internal/repository"
	"github.com/postdeck/postdeck/pkg/utils"
)

const (
	instagramRefreshURL = "https://graph.instagram.com/refresh_access_token"
	facebookRefreshURL  = "https://graph.facebook.com/v21.0/oauth/access_token"
	linkedinTokenURL    = "https://www.linkedin.com/oauth/v2/accessToken"
)

// TokenRefreshJob renews credentials that expire within the next 30 minutes.
// Driven by cron, independent of the publish cycle.
type TokenRefreshJob struct {
	cfg config.Config
	cr  repository.CredentialRepository
}

func NewTokenRefreshJob(cfg config.Config, cr repository.CredentialRepository) *TokenRefreshJob {
	return &TokenRefreshJob{cfg: cfg, cr: cr}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	creds, err := j.cr.ListExpiring(ctx, 30*time.Minute)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	sem := make(chan struct{}, concurrencyLimit)

	for _, cred := range creds {
		wg.Add(1)
		sem <- struct{}{}

		go func(cred *models.Credential) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			switch cred.Platform {
			case "instagram":
				err = j.refreshInstagram(ctx, cred)
			case "facebook":
				err = j.refreshFacebook(ctx, cred)
			case "linkedin":
				err = j.refreshLinkedin(ctx, cred)
			}
			if err != nil {
				slog.Info(fmt.Sprintf("Unable to refresh tokens for %s credential %d: %v", cred.Platform, cred.ID, err))
			}
		}(cred)
	}

	wg.Wait()
}

func (j *TokenRefreshJob) refreshInstagram(ctx context.Context, cred *models.Credential) error {
	accessToken, err := utils.Decrypt(cred.AccessToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s?grant_type=ig_refresh_token&access_token=%s", instagramRefreshURL, accessToken)
	result, err := j.getToken(ctx, url)
	if err != nil {
		return err
	}

	return j.storeToken(ctx, cred.ID, result.AccessToken, "", result.ExpiresIn)
}

// refreshFacebook exchanges the current long-lived token for a new one.
func (j *TokenRefreshJob) refreshFacebook(ctx context.Context, cred *models.Credential) error {
	accessToken, err := utils.Decrypt(cred.AccessToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		facebookRefreshURL, j.cfg.FacebookClientID, j.cfg.FacebookClientSecret, accessToken)
	result, err := j.getToken(ctx, url)
	if err != nil {
		return err
	}

	return j.storeToken(ctx, cred.ID, result.AccessToken, "", result.ExpiresIn)
}

func (j *TokenRefreshJob) refreshLinkedin(ctx context.Context, cred *models.Credential) error {
	refreshToken, err := utils.Decrypt(cred.RefreshToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	conf := &oauth2.Config{
		ClientID:     j.cfg.LinkedinClientID,
		ClientSecret: j.cfg.LinkedinClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: linkedinTokenURL},
	}

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return err
	}

	encryptedAccess, err := utils.Encrypt([]byte(token.AccessToken), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefresh := ""
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		encryptedRefresh, err = utils.Encrypt([]byte(token.RefreshToken), []byte(j.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	return j.cr.SetToken(ctx, cred.ID, encryptedAccess, encryptedRefresh, token.Expiry)
}

type tokenResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (j *TokenRefreshJob) getToken(ctx context.Context, url string) (*tokenResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, body)
	}

	var result tokenResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token in refresh response")
	}

	return &result, nil
}

func (j *TokenRefreshJob) storeToken(ctx context.Context, ref int64, accessToken, refreshToken string, expiresIn int64) error {
	encryptedAccess, err := utils.Encrypt([]byte(accessToken), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefresh := ""
	if refreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(refreshToken), []byte(j.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	expiresAt := time.Now().Add(time.Duration(expiresIn) * time.Second)
	return j.cr.SetToken(ctx, ref, encryptedAccess, encryptedRefresh, expiresAt)
}
