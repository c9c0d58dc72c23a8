package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// GoogleIdentity is the subset of a verified Google ID token we use.
type GoogleIdentity struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
}

// IdentityVerifier checks a Google ID token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// TokenRevoker keeps the refresh-token blacklist.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthConfig holds token signing settings
type AuthConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims are the JWT claims issued by the API
type Claims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is an access and refresh token issued together
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// UserView is the user as returned to clients
type UserView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsNewUser *bool  `json:"is_new_user,omitempty"`
}

// LoginResult is returned by a successful Google sign-in
type LoginResult struct {
	Tokens   TokenPair        `json:"tokens"`
	User     UserView         `json:"user"`
	Customer *models.Customer `json:"customer"`
}

// AuthService signs users in with Google and issues JWTs
type AuthService struct {
	store    *store.Store
	verifier IdentityVerifier
	revoker  TokenRevoker
	cfg      AuthConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewAuthService creates a new auth service. revoker may be nil, in which
// case logout cannot blacklist tokens.
func NewAuthService(store *store.Store, verifier IdentityVerifier, revoker TokenRevoker, cfg AuthConfig) *AuthService {
	return &AuthService{
		store:    store,
		verifier: verifier,
		revoker:  revoker,
		cfg:      cfg,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// LoginWithGoogle verifies a Google ID token, finds or creates the user by
// email, makes sure the user has a customer profile and issues tokens.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.LoginWithGoogle")
	defer span.End()

	if idToken == "" {
		return nil, models.NewValidationError("id_token", "This field is required.")
	}

	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.logger.Info("Rejected Google token", zap.Error(err))
		return nil, fmt.Errorf("invalid Google token: %w", models.ErrUnauthorized)
	}
	if identity.Email == "" {
		return nil, models.NewValidationError("id_token", "Email not provided by Google")
	}

	var (
		user     *models.User
		customer *models.Customer
		created  bool
	)
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		user, err = tx.GetUserByEmail(ctx, identity.Email)
		switch {
		case errors.Is(err, models.ErrNotFound):
			user = &models.User{
				Email:     identity.Email,
				Username:  identity.Email,
				FirstName: identity.GivenName,
				LastName:  identity.FamilyName,
				IsActive:  true,
			}
			if err := tx.CreateUser(ctx, user); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		default:
			if identity.GivenName != "" {
				user.FirstName = identity.GivenName
			}
			if identity.FamilyName != "" {
				user.LastName = identity.FamilyName
			}
			if err := tx.UpdateUserNames(ctx, user.ID, user.FirstName, user.LastName); err != nil {
				return err
			}
		}

		if !user.IsActive {
			return fmt.Errorf("user %d is inactive: %w", user.ID, models.ErrUnauthorized)
		}

		customer, err = ensureCustomer(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("User signed in with Google",
		zap.Int64("user_id", user.ID),
		zap.Bool("new_user", created))

	view := userView(user)
	view.IsNewUser = &created
	return &LoginResult{Tokens: *tokens, User: view, Customer: customer}, nil
}

// Refresh exchanges a valid, unrevoked refresh token for a new access token
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return "", err
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", fmt.Errorf("user %d: %w", claims.UserID, models.ErrUnauthorized)
		}
		return "", err
	}
	if !user.IsActive {
		return "", fmt.Errorf("user %d is inactive: %w", user.ID, models.ErrUnauthorized)
	}

	return s.sign(user, TokenTypeAccess, s.cfg.AccessTTL)
}

// Logout blacklists a refresh token until it would have expired
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := util.StartSpan(ctx, "AuthService.Logout")
	defer span.End()

	claims, err := s.parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return err
	}
	if s.revoker == nil {
		s.logger.Warn("Token revocation unavailable, logout is a no-op", zap.Int64("user_id", claims.UserID))
		return nil
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if err := s.revoker.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	s.logger.Info("User logged out", zap.Int64("user_id", claims.UserID))
	return nil
}

// ParseAccessToken validates an access token and returns its claims
func (s *AuthService) ParseAccessToken(token string) (*Claims, error) {
	return s.parse(token, TokenTypeAccess)
}

// Profile returns the user and their customer profile
func (s *AuthService) Profile(ctx context.Context, userID int64) (*UserView, *models.Customer, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Profile")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	customer, err := ensureCustomer(ctx, s.store, userID)
	if err != nil {
		return nil, nil, err
	}
	view := userView(user)
	return &view, customer, nil
}

func (s *AuthService) issueTokens(user *models.User) (*TokenPair, error) {
	access, err := s.sign(user, TokenTypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenTypeRefresh, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *AuthService) sign(user *models.User, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *AuthService) parse(token, tokenType string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("missing token: %w", models.ErrUnauthorized)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return []byte(s.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %v: %w", err, models.ErrUnauthorized)
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("expected %s token, got %q: %w", tokenType, claims.TokenType, models.ErrUnauthorized)
	}
	return claims, nil
}

func (s *AuthService) checkRevoked(ctx context.Context, claims *Claims) error {
	if s.revoker == nil {
		return nil
	}
	revoked, err := s.revoker.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("failed to check token revocation: %w", err)
	}
	if revoked {
		return fmt.Errorf("token revoked: %w", models.ErrUnauthorized)
	}
	return nil
}

func userView(u *models.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}
