package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// Capabilities granted by role.
const (
	CapabilityManageCatalog = "manage_catalog"
	CapabilityManageOrders  = "manage_orders"
)

var roleCapabilities = map[string][]string{
	models.RoleAdmin:    {CapabilityManageCatalog, CapabilityManageOrders},
	models.RoleCustomer: nil,
}

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration
	validate   *validator.Validate
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour,
		validate:   validator.New(),
	}
}

// RegisterUser validates and stores a new customer with a hashed password.
func (s *AuthService) RegisterUser(ctx context.Context, user *models.User) error {
	user.Role = models.RoleCustomer
	return s.register(ctx, user)
}

// EnsureAdmin creates an administrator account unless the username already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil
	}
	return s.register(ctx, &models.User{
		Username: username,
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
	})
}

func (s *AuthService) register(ctx context.Context, user *models.User) error {
	if err := s.validate.Struct(user); err != nil {
		return validationError("%v", err)
	}
	if _, err := s.userRepo.GetByUsername(ctx, user.Username); err == nil {
		return fmt.Errorf("%w: username '%s'", ErrAlreadyRegistered, user.Username)
	}
	if _, err := s.userRepo.GetByEmail(ctx, user.Email); err == nil {
		return fmt.Errorf("%w: email '%s'", ErrAlreadyRegistered, user.Email)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashedPassword)

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateUser) {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, user.Username)
		}
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

// LoginUser authenticates a user and returns a JWT token if successful.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     user.Role,
		"exp":      now.Add(s.tokenDurat).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// PrincipalFromClaims extracts the caller identity carried by a validated token.
func PrincipalFromClaims(claims jwt.MapClaims) models.Principal {
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if role == "" {
		role = models.RoleCustomer
	}
	return models.Principal{UserID: userID, Role: role}
}

// HasCapability is the single authorization check used by middleware and services.
func (s *AuthService) HasCapability(principal models.Principal, capability string) bool {
	if !principal.Authenticated() {
		return false
	}
	for _, c := range roleCapabilities[principal.Role] {
		if c == capability {
			return true
		}
	}
	return false
}
