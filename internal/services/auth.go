package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
)

type AuthService interface {
	CreateUser(db *gorm.DB, creds Credentials, assigneeID int64) (*models.User, error)
	LoginUser(db *gorm.DB, username, password string) (*models.User, error)
	GenerateTokens(db *gorm.DB, user *models.User) (TokenPair, error)
	RefreshToken(db *gorm.DB, refreshToken string) (TokenPair, error)
	RevokeToken(db *gorm.DB, refreshToken string) error
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=100"`
	Password string `json:"password" binding:"required,min=6,max=50"`
}

type LoginResponse struct {
	TokenPair
	User UserProfile `json:"user"`
}

type UserProfile struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	AssigneeID  int64      `json:"assignee_id"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

type AuthConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int
}

type AuthServiceImpl struct {
	cfg AuthConfig
	now func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewAuthService(cfg AuthConfig) *AuthServiceImpl {
	if cfg.Issuer == "" {
		cfg.Issuer = "taskify-backend"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthServiceImpl{cfg: cfg, now: time.Now}
}

// dummyPasswordHash is compared against when the username is unknown so that
// a miss costs the same bcrypt work as a wrong password.
func (s *AuthServiceImpl) dummyPasswordHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("taskify-unknown-user"), s.cfg.BcryptCost)
		if err != nil {
			hash, _ = bcrypt.GenerateFromPassword([]byte("taskify-unknown-user"), bcrypt.DefaultCost)
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) CreateUser(db *gorm.DB, creds Credentials, assigneeID int64) (*models.User, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}
	if assigneeID <= 0 {
		return nil, &ValidationError{Fields: map[string]string{"assignee_id": "must be a positive number"}}
	}

	var existing models.User
	err := db.Where("username = ?", creds.Username).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:   creds.Username,
		Password:   string(hashed),
		AssigneeID: assigneeID,
		IsActive:   true,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// LoginUser checks the password and stamps the login time. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func (s *AuthServiceImpl) LoginUser(db *gorm.DB, username, password string) (*models.User, error) {
	var user models.User
	if err := db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyPasswordHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	now := s.now()
	user.LastLoginAt = &now
	if err := db.Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	return &user, nil
}

func (s *AuthServiceImpl) GenerateTokens(db *gorm.DB, user *models.User) (TokenPair, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":     user.ID.String(),
		"username":    user.Username,
		"assignee_id": user.AssigneeID,
		"iss":         s.cfg.Issuer,
		"iat":         now.Unix(),
		"exp":         now.Add(s.cfg.AccessTTL).Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := uuid.NewV4()
	if err != nil {
		return TokenPair{}, err
	}
	token := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserId:       user.ID,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.cfg.RefreshTTL),
	}
	if err := db.Create(&token).Error; err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refresh.String(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}

// RefreshToken rotates a refresh token: the presented one is consumed and a
// new pair is issued.
func (s *AuthServiceImpl) RefreshToken(db *gorm.DB, refreshToken string) (TokenPair, error) {
	id, err := uuid.FromString(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	var pair TokenPair
	err = db.Transaction(func(tx *gorm.DB) error {
		var token models.Token
		if err := tx.Where("refresh_token = ?", id).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if token.Expired(s.now()) {
			return ErrInvalidToken
		}

		var user models.User
		if err := tx.First(&user, "id = ?", token.UserId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if !user.IsActive {
			return ErrAccountDisabled
		}

		if err := tx.Delete(&token).Error; err != nil {
			return err
		}
		pair, err = s.GenerateTokens(tx, &user)
		return err
	})
	return pair, err
}

func (s *AuthServiceImpl) RevokeToken(db *gorm.DB, refreshToken string) error {
	id, err := uuid.FromString(refreshToken)
	if err != nil {
		return ErrInvalidToken
	}
	result := db.Where("refresh_token = ?", id).Delete(&models.Token{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidToken
	}
	return nil
}
