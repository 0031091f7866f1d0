package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"acara/internal/apperrors"
	"acara/internal/models"
	"acara/internal/repositories"
)

// bcryptCost is deliberately above bcrypt.DefaultCost; password
// hashing is the one place slow is a feature.
const bcryptCost = 12

// tokenTTL is how long an issued token stays valid. Tokens are
// self-contained; expiry is the only invalidation mechanism.
const tokenTTL = 24 * time.Hour

// Identity is the verified caller extracted from a token.
type Identity struct {
	ID    uint
	Email string
}

// AuthService handles signup, login and token issue/verification.
type AuthService struct {
	userRepo  repositories.UserRepository
	jwtSecret []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new user with a bcrypt-hashed password and signs
// them in, returning the public user shape and a fresh token.
// A duplicate email fails with apperrors.ErrEmailTaken.
func (s *AuthService) Register(email, password string) (*models.UserPublic, string, error) {
	email = strings.TrimSpace(email)

	if existing, err := s.userRepo.GetByEmail(email); err == nil && existing != nil {
		return nil, "", apperrors.ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Email: email, Password: string(hashed)}
	if err := s.userRepo.Create(user); err != nil {
		// The unique index is the backstop for a concurrent signup
		// that slipped past the lookup above.
		if errors.Is(err, apperrors.ErrEmailTaken) {
			return nil, "", apperrors.ErrEmailTaken
		}
		return nil, "", fmt.Errorf("failed to register user: %w", err)
	}

	pub := user.Public()
	token, err := s.IssueToken(pub)
	if err != nil {
		return nil, "", err
	}
	return &pub, token, nil
}

// Login verifies credentials and returns the public user shape plus a
// fresh token. Unknown email and wrong password both fail with
// apperrors.ErrInvalidCredentials; the caller cannot tell which.
func (s *AuthService) Login(email, password string) (*models.UserPublic, string, error) {
	user, err := s.userRepo.GetByEmail(strings.TrimSpace(email))
	if err != nil {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, "", apperrors.ErrInvalidCredentials
	}

	pub := user.Public()
	token, err := s.IssueToken(pub)
	if err != nil {
		return nil, "", err
	}
	return &pub, token, nil
}

// IssueToken produces a signed HS256 token carrying the user's id and
// email, expiring after tokenTTL.
func (s *AuthService) IssueToken(user models.UserPublic) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":    user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenTTL).Unix(),
	})

	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning the embedded
// identity. Expired tokens fail with apperrors.ErrTokenExpired; any
// other defect (bad signature, wrong algorithm, malformed claims)
// fails with apperrors.ErrInvalidToken.
func (s *AuthService) ValidateToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}

	// JSON numbers decode as float64.
	id, ok := claims["id"].(float64)
	if !ok || id <= 0 {
		return nil, apperrors.ErrInvalidToken
	}
	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return nil, apperrors.ErrInvalidToken
	}

	return &Identity{ID: uint(id), Email: email}, nil
}
