package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

var _ Provider = (*FirebaseProvider)(nil)

// FirebaseProvider implements Provider on top of the Firebase Admin SDK.
type FirebaseProvider struct {
	client *auth.Client
	logger *slog.Logger
}

// NewFirebaseProvider constructs the provider from explicit configuration;
// no ambient/global SDK state is used.
func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string, logger *slog.Logger) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}

	logger.Info("Firebase identity provider initialized", slog.String("project_id", projectID))
	return &FirebaseProvider{client: client, logger: logger}, nil
}

func (p *FirebaseProvider) CreateUser(ctx context.Context, params NewUserParams) (string, error) {
	// Validate locally so the 400-class kinds stay a closed mapping instead
	// of string-matching SDK messages.
	if _, err := mail.ParseAddress(params.Email); err != nil {
		return "", newError(KindInvalidEmail, "CreateUser", err)
	}
	if len(params.Password) < 6 {
		return "", newError(KindWeakPassword, "CreateUser", fmt.Errorf("password shorter than 6 characters"))
	}

	toCreate := (&auth.UserToCreate{}).
		Email(params.Email).
		Password(params.Password).
		DisplayName(params.DisplayName).
		EmailVerified(false)

	record, err := p.client.CreateUser(ctx, toCreate)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", newError(KindEmailExists, "CreateUser", err)
		}
		return "", newError(KindUnavailable, "CreateUser", err)
	}
	return record.UID, nil
}

func (p *FirebaseProvider) VerifyToken(ctx context.Context, token string) (*Token, error) {
	decoded, err := p.client.VerifyIDTokenAndCheckRevoked(ctx, token)
	if err != nil {
		switch {
		case auth.IsIDTokenExpired(err):
			return nil, newError(KindTokenExpired, "VerifyToken", err)
		case auth.IsIDTokenRevoked(err):
			return nil, newError(KindTokenRevoked, "VerifyToken", err)
		case auth.IsIDTokenInvalid(err):
			return nil, newError(KindTokenInvalid, "VerifyToken", err)
		default:
			return nil, newError(KindUnavailable, "VerifyToken", err)
		}
	}

	claims := Claims{}
	if role, ok := decoded.Claims["role"].(string); ok {
		claims.Role = role
	}
	if verified, ok := decoded.Claims["isVerified"].(bool); ok {
		claims.IsVerified = verified
	}

	return &Token{
		UID:       decoded.UID,
		IssuedAt:  time.Unix(decoded.IssuedAt, 0),
		ExpiresAt: time.Unix(decoded.Expires, 0),
		Claims:    claims,
	}, nil
}

func (p *FirebaseProvider) SetCustomClaims(ctx context.Context, uid string, claims Claims) error {
	payload := map[string]interface{}{
		"role":       claims.Role,
		"isVerified": claims.IsVerified,
	}
	if err := p.client.SetCustomUserClaims(ctx, uid, payload); err != nil {
		if auth.IsUserNotFound(err) {
			return newError(KindNotFound, "SetCustomClaims", err)
		}
		return newError(KindUnavailable, "SetCustomClaims", err)
	}
	return nil
}

func (p *FirebaseProvider) UpdateUser(ctx context.Context, uid string, params UpdateUserParams) error {
	toUpdate := &auth.UserToUpdate{}
	if params.DisplayName != nil {
		toUpdate = toUpdate.DisplayName(*params.DisplayName)
	}
	if params.Password != nil {
		if len(*params.Password) < 6 {
			return newError(KindWeakPassword, "UpdateUser", fmt.Errorf("password shorter than 6 characters"))
		}
		toUpdate = toUpdate.Password(*params.Password)
	}

	if _, err := p.client.UpdateUser(ctx, uid, toUpdate); err != nil {
		if auth.IsUserNotFound(err) {
			return newError(KindNotFound, "UpdateUser", err)
		}
		return newError(KindUnavailable, "UpdateUser", err)
	}
	return nil
}

func (p *FirebaseProvider) DeleteUser(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return newError(KindNotFound, "DeleteUser", err)
		}
		return newError(KindUnavailable, "DeleteUser", err)
	}
	return nil
}

func (p *FirebaseProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := p.client.RevokeRefreshTokens(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return newError(KindNotFound, "RevokeRefreshTokens", err)
		}
		return newError(KindUnavailable, "RevokeRefreshTokens", err)
	}
	return nil
}
