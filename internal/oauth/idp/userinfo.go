package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrUserInfo marks a failed userinfo call. Callers treat it as non-fatal:
// the token exchange already succeeded, so the flow continues without claims
// and downstream claim-dependent steps are skipped.
var ErrUserInfo = errors.New("userinfo request failed")

// UserProfile is the minimal claim set the flow consumes. RawClaims keeps
// the full payload for audit and debugging.
type UserProfile struct {
	SubjectID         string         `json:"sub"`
	Name              string         `json:"name,omitempty"`
	Email             string         `json:"email,omitempty"`
	PreferredUsername string         `json:"preferred_username,omitempty"`
	RawClaims         map[string]any `json:"-"`
}

// UserInfo resolves the claim set for an access token with a single
// Bearer-authenticated GET.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: http %d", ErrUserInfo, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUserInfo, err)
	}

	return profileFromClaims(raw), nil
}

func profileFromClaims(raw map[string]any) *UserProfile {
	str := func(k string) string {
		v, _ := raw[k].(string)
		return v
	}
	return &UserProfile{
		SubjectID:         str("sub"),
		Name:              str("name"),
		Email:             str("email"),
		PreferredUsername: str("preferred_username"),
		RawClaims:         raw,
	}
}
