package httpapi

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tienda/pos/internal/domain"
)

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	// Startup-time load; no request context exists yet.
	manager.bootstrapUsers(context.Background())
	return manager
}

// bootstrapUsers loads accounts from the user store; a store with no
// accounts at all (a fresh database file) gets a seeded admin so the first
// login is possible. Legacy plain-text passwords are upgraded to bcrypt
// hashes in the store on the way in.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		log.Printf("[auth] WARN: listing users failed: %v", err)
		return
	}

	if len(users) == 0 {
		adminPwd := os.Getenv("SEED_ADMIN_PASSWORD")
		if adminPwd == "" {
			adminPwd = "admin123"
			log.Println("[auth] WARNING: seeding default admin credentials. Set SEED_ADMIN_PASSWORD to override.")
		}
		hash, err := hashPassword(adminPwd)
		if err != nil {
			log.Printf("[auth] WARN: hashing seed password failed: %v", err)
			return
		}
		admin := domain.UserAccount{
			Username:  "admin",
			Password:  hash,
			Role:      domain.RoleAdmin,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.userStore.CreateUser(ctx, admin); err != nil {
			log.Printf("[auth] WARN: creating seed admin failed: %v", err)
			return
		}
		users = []domain.UserAccount{admin}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range users {
		password := u.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, u.Username, hashed); err != nil {
					log.Printf("[auth] WARN: upgrading password for %s failed: %v", u.Username, err)
				}
			}
		}
		a.users[u.Username] = credential{
			password: password,
			role:     u.Role,
			active:   u.Active,
		}
	}
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	// Re-read the store so accounts added outside this process are seen.
	a.bootstrapUsers(context.Background())

	username := strings.TrimSpace(req.Username)
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	// A deactivated account answers exactly like a bad password, so the
	// response never confirms that a credential is otherwise valid.
	if !ok || !cred.active || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username string, role string, expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(stored string, plain string) bool {
	if stored == "" || strings.TrimSpace(plain) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
