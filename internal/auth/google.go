package auth

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// GoogleIDVerifier validates Google-issued ID tokens against a configured
// audience and extracts the verified email.
type GoogleIDVerifier struct{}

var _ GoogleVerifier = GoogleIDVerifier{}

// Verify checks the token signature, expiry and audience via Google's
// certificates and returns the asserted email address.
func (GoogleIDVerifier) Verify(ctx context.Context, idTok, audience string) (string, error) {
	// idtoken.Validate skips the audience check when audience is empty,
	// which would accept tokens issued to arbitrary applications.
	if audience == "" {
		return "", errors.New("audience is required")
	}
	payload, err := idtoken.Validate(ctx, idTok, audience)
	if err != nil {
		return "", fmt.Errorf("validate id token: %w", err)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return "", errors.New("id token carries no email claim")
	}
	if verified, _ := payload.Claims["email_verified"].(bool); !verified {
		return "", errors.New("email is not verified by the issuer")
	}
	return email, nil
}
