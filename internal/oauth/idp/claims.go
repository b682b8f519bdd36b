package idp

import (
	"errors"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ParseIDTokenClaims decodes the claim payload of an ID token without
// verifying the signature. It exists only as the documented fallback when
// the userinfo call fails: the token arrived over the broker's own TLS
// exchange with the IdP, and signature validation is the issuer's contract,
// not reproduced here. Never feed it a token from any other source.
func ParseIDTokenClaims(idToken string) (*UserProfile, error) {
	if idToken == "" {
		return nil, errors.New("empty id token")
	}

	claims := jwtv5.MapClaims{}
	parser := jwtv5.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, err
	}

	p := profileFromClaims(map[string]any(claims))
	if p.SubjectID == "" {
		return nil, errors.New("id token missing sub claim")
	}
	return p, nil
}
