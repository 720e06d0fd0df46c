package services

import (
	"context"
	"errors"
	"time"

	"chathub/internal/db"
	"chathub/internal/models"
	"chathub/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrUserExists = errors.New("user already exists")

type UserService struct{}

func NewUserService() *UserService {
	return &UserService{}
}

func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, req.Email).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserExists
	}

	var user models.User
	query := `INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id, name, email, created_at`
	err = db.Pool.QueryRow(ctx, query, req.Name, req.Email, string(hash)).
		Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *UserService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var user models.User
	query := `SELECT id, name, email, password_hash FROM users WHERE email = $1`
	err := db.Pool.QueryRow(ctx, query, req.Email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	token, err := GenerateJWT(user.ID, user.Name)
	if err != nil {
		return nil, err
	}
	refresh, err := GenerateRefreshToken(user.ID, user.Name)
	if err != nil {
		return nil, err
	}

	return &models.AuthResponse{
		UserID:       user.ID,
		Name:         user.Name,
		Token:        token,
		RefreshToken: refresh,
	}, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, name, email, created_at FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func GenerateJWT(userID, name string) (string, error) {
	return signToken(userID, name, utils.GetEnv("JWT_SECRET", "secret"), 24*time.Hour)
}

func GenerateRefreshToken(userID, name string) (string, error) {
	return signToken(userID, name, utils.GetEnv("JWT_REFRESH_SECRET", "refresh-secret"), 7*24*time.Hour)
}

func signToken(userID, name, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken verifies an access token and returns the Identity it
// carries.
func ValidateToken(tokenString string) (*models.Identity, error) {
	return parseToken(tokenString, utils.GetEnv("JWT_SECRET", "secret"))
}

// ValidateRefreshToken verifies a refresh token.
func ValidateRefreshToken(tokenString string) (*models.Identity, error) {
	return parseToken(tokenString, utils.GetEnv("JWT_REFRESH_SECRET", "refresh-secret"))
}

func parseToken(tokenString, secret string) (*models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid token claims")
	}
	name, _ := claims["name"].(string)

	return &models.Identity{UserID: userID, Name: name}, nil
}
