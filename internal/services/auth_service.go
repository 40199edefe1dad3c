package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/masteryloop-backend/internal/apierr"
	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/repos"
	"github.com/yungbote/masteryloop-backend/internal/types"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	Register(ctx context.Context, email, password, displayName string) (*types.Learner, *apierr.Error)
	Login(ctx context.Context, email, password string) (*TokenPair, *apierr.Error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, *apierr.Error)
	Logout(ctx context.Context, learnerID uuid.UUID) *apierr.Error
	ParseAccessToken(tokenString string) (uuid.UUID, error)
}

type authService struct {
	db           *gorm.DB
	log          *logger.Logger
	learnerRepo  repos.LearnerRepo
	tokenRepo    repos.LearnerTokenRepo
	jwtSecretKey string
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	learnerRepo repos.LearnerRepo,
	tokenRepo repos.LearnerTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:           db,
		log:          baseLog.With("service", "AuthService"),
		learnerRepo:  learnerRepo,
		tokenRepo:    tokenRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}
}

func (as *authService) Register(ctx context.Context, email, password, displayName string) (*types.Learner, *apierr.Error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apierr.New(http.StatusBadRequest, "invalid_email", errors.New("a valid email is required"))
	}
	if len(password) < 8 {
		return nil, apierr.New(http.StatusBadRequest, "weak_password", errors.New("password must be at least 8 characters"))
	}

	existing, err := as.learnerRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "lookup_failed", err)
	}
	if existing != nil {
		return nil, apierr.New(http.StatusConflict, "email_taken", errors.New("email already registered"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "hash_failed", err)
	}

	learner := &types.Learner{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
	}
	if err := as.learnerRepo.Create(ctx, nil, learner); err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "create_failed", err)
	}
	return learner, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*TokenPair, *apierr.Error) {
	email = strings.ToLower(strings.TrimSpace(email))
	learner, err := as.learnerRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "lookup_failed", err)
	}
	if learner == nil {
		return nil, apierr.New(http.StatusUnauthorized, "invalid_credentials", errors.New("invalid email or password"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(learner.PasswordHash), []byte(password)); err != nil {
		return nil, apierr.New(http.StatusUnauthorized, "invalid_credentials", errors.New("invalid email or password"))
	}

	pair, err := as.issueTokens(ctx, learner.ID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "token_issue_failed", err)
	}
	return pair, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *apierr.Error) {
	if refreshToken == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_refresh_token", errors.New("refresh token is required"))
	}
	row, err := as.tokenRepo.GetByHash(ctx, nil, hashToken(refreshToken))
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "lookup_failed", err)
	}
	if row == nil {
		return nil, apierr.New(http.StatusUnauthorized, "invalid_refresh_token", errors.New("refresh token is invalid or expired"))
	}

	var pair *TokenPair
	txErr := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := as.tokenRepo.RevokeAllForLearner(ctx, tx, row.LearnerID); err != nil {
			return err
		}
		p, err := as.issueTokensTx(ctx, tx, row.LearnerID)
		if err != nil {
			return err
		}
		pair = p
		return nil
	})
	if txErr != nil {
		return nil, apierr.New(http.StatusInternalServerError, "token_issue_failed", txErr)
	}
	return pair, nil
}

func (as *authService) Logout(ctx context.Context, learnerID uuid.UUID) *apierr.Error {
	if err := as.tokenRepo.RevokeAllForLearner(ctx, nil, learnerID); err != nil {
		return apierr.New(http.StatusInternalServerError, "logout_failed", err)
	}
	return nil
}

func (as *authService) ParseAccessToken(tokenString string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	return uuid.Parse(claims.Subject)
}

func (as *authService) issueTokens(ctx context.Context, learnerID uuid.UUID) (*TokenPair, error) {
	return as.issueTokensTx(ctx, nil, learnerID)
}

func (as *authService) issueTokensTx(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*TokenPair, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   learnerID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	row := &types.LearnerToken{
		ID:        uuid.New(),
		LearnerID: learnerID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(as.refreshTTL),
	}
	if err := as.tokenRepo.Create(ctx, tx, row); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh tokens are stored hashed so a database leak doesn't hand out
// live credentials.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
