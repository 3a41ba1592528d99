package myffme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/ffmesync/internal/credentials"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Authenticator は認証エンドポイントにログインしてアクセストークンを取得する。
// credentials.Authenticator を実装する。
type Authenticator struct {
	http     *resty.Client
	endpoint string
	username string
	password string
}

var _ credentials.Authenticator = (*Authenticator)(nil)

// NewAuthenticator はAuthenticatorの新しいインスタンスを生成する。
func NewAuthenticator(endpoint, username, password string) *Authenticator {
	return &Authenticator{
		http: resty.New().
			SetTimeout(15*time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
		endpoint: endpoint,
		username: username,
		password: password,
	}
}

// Login はフィンガープリントのヘッダーを付けてログインし、トークンを返す。
func (a *Authenticator) Login(ctx context.Context, fp credentials.Fingerprint) (string, error) {
	var result loginResponse
	req := a.http.R().
		SetContext(ctx).
		SetBody(loginRequest{Username: a.username, Password: a.password}).
		SetResult(&result)
	fp.Apply(req.Header)

	resp, err := req.Post(a.endpoint)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	if resp.IsError() {
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			return "", fmt.Errorf("login: status %d: %w", resp.StatusCode(), ErrUnauthorized)
		}
		return "", fmt.Errorf("login: unexpected status %d", resp.StatusCode())
	}
	if result.Token == "" {
		return "", errors.New("login: empty token in response")
	}
	return result.Token, nil
}
