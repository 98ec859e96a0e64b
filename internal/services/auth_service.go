package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const sessionTTL = 24 * time.Hour

// AuthClaims is what a verified session token carries.
type AuthClaims struct {
	AdminID string
	Email   string
	Role    string
}

type AuthService struct {
	db     *gorm.DB
	secret []byte
}

func NewAuthService(db *gorm.DB, secret string) *AuthService {
	return &AuthService{db: db, secret: []byte(secret)}
}

// Login verifies credentials and returns a signed session token.
func (s *AuthService) Login(email, password string) (string, *models.Admin, error) {
	var admin models.Admin
	if err := s.db.Where("email = ?", email).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !admin.CheckPassword(password) {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.db.Model(&admin).UpdateColumn("last_login", now).Error; err != nil {
		logger.Log().WithError(err).Warn("Failed to record last login")
	}
	admin.LastLogin = &now

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   admin.ID,
		"email": admin.Email,
		"role":  admin.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(sessionTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}
	return signed, &admin, nil
}

// ValidateToken parses and verifies a session token, including expiry.
func (s *AuthService) ValidateToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	return &AuthClaims{AdminID: sub, Email: email, Role: role}, nil
}

// Bootstrap creates the first admin account from configuration. It does
// nothing when credentials are unset or any admin already exists.
func (s *AuthService) Bootstrap(email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	var count int64
	if err := s.db.Model(&models.Admin{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	admin := models.Admin{Email: email, Name: "Administrator", Role: "admin"}
	if err := admin.SetPassword(password); err != nil {
		return err
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Log().WithField("email", email).Info("Created initial admin account")
	return nil
}
