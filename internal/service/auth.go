package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tabletap/internal/model"
)

var (
	ErrLoginTaken         = errors.New("login already exists")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidSession     = errors.New("invalid or expired session token")
	ErrRestaurantNotFound = errors.New("restaurant not found")
)

const (
	staffTokenTTL = 24 * time.Hour
	tableTokenTTL = 2 * time.Hour
)

type AuthService struct {
	db     *sql.DB
	secret string
}

func NewAuthService(db *sql.DB, secret string) *AuthService {
	return &AuthService{db: db, secret: secret}
}

// Register creates a restaurant together with its first staff account.
func (s *AuthService) Register(ctx context.Context, login, password, restaurantName string) (*model.StaffUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var restaurantID string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO restaurants (name) VALUES ($1) RETURNING id`,
		restaurantName,
	).Scan(&restaurantID)
	if err != nil {
		return nil, fmt.Errorf("insert restaurant: %w", err)
	}

	var user model.StaffUser
	err = tx.QueryRowContext(ctx,
		`INSERT INTO staff_users (restaurant_id, login, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, restaurant_id, login, created_at`,
		restaurantID, login, hash,
	).Scan(&user.ID, &user.RestaurantID, &user.Login, &user.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, ErrLoginTaken
		}
		return nil, fmt.Errorf("insert staff user: %w", err)
	}
	user.PasswordHash = hash

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &user, nil
}

func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*model.StaffUser, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, restaurant_id, login, password_hash, created_at FROM staff_users WHERE login = $1`,
		login,
	)

	var user model.StaffUser
	if err := row.Scan(&user.ID, &user.RestaurantID, &user.Login, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get staff user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func (s *AuthService) IssueStaffToken(user *model.StaffUser) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role":          string(model.PrincipalStaff),
		"user_id":       user.ID,
		"restaurant_id": user.RestaurantID,
		"exp":           jwt.NewNumericDate(time.Now().Add(staffTokenTTL)),
	})
	return token.SignedString([]byte(s.secret))
}

// IssueTableToken mints the short-lived guest token a table page holds.
// Guests are not globally authenticated; authorization is scoped to this
// restaurant and table for the token's lifetime.
func (s *AuthService) IssueTableToken(ctx context.Context, restaurantID string, tableNumber int) (string, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM restaurants WHERE id = $1)`, restaurantID,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("check restaurant: %w", err)
	}
	if !exists {
		return "", ErrRestaurantNotFound
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role":          string(model.PrincipalGuest),
		"restaurant_id": restaurantID,
		"table":         tableNumber,
		"exp":           jwt.NewNumericDate(time.Now().Add(tableTokenTTL)),
	})
	return token.SignedString([]byte(s.secret))
}

// ResolveSession turns a bearer token into a Principal, staff or guest.
func (s *AuthService) ResolveSession(tokenString string) (model.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.secret), nil
	})
	if err != nil || !token.Valid {
		return model.Principal{}, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Principal{}, ErrInvalidSession
	}

	restaurantID, _ := claims["restaurant_id"].(string)
	if restaurantID == "" {
		return model.Principal{}, ErrInvalidSession
	}

	role, _ := claims["role"].(string)
	switch model.PrincipalKind(role) {
	case model.PrincipalStaff:
		userID, _ := claims["user_id"].(string)
		if userID == "" {
			return model.Principal{}, ErrInvalidSession
		}
		return model.Principal{Kind: model.PrincipalStaff, UserID: userID, RestaurantID: restaurantID}, nil

	case model.PrincipalGuest:
		tableClaim, ok := claims["table"].(float64)
		if !ok {
			return model.Principal{}, ErrInvalidSession
		}
		table := int(tableClaim)
		return model.Principal{Kind: model.PrincipalGuest, RestaurantID: restaurantID, TableNumber: &table}, nil

	default:
		return model.Principal{}, ErrInvalidSession
	}
}
