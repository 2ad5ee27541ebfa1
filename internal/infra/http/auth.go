package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vibeailife/internal/domain"
)

// TokenIssuer выпускает и проверяет HS256 токены доступа.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer создаёт issuer. Пустой секрет отключает JWT.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled сообщает, задан ли секрет.
func (t *TokenIssuer) Enabled() bool {
	return t != nil && len(t.secret) > 0
}

// Issue подписывает токен с claims sub и role.
func (t *TokenIssuer) Issue(id domain.Identity) (string, error) {
	if !t.Enabled() {
		return "", errors.New("jwt secret is empty")
	}
	now := t.now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(t.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse проверяет подпись и срок действия.
func (t *TokenIssuer) Parse(raw string) (domain.Identity, error) {
	if !t.Enabled() {
		return domain.Identity{}, errors.New("jwt secret is empty")
	}
	tok, err := jwt.Parse(raw, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !tok.Valid {
		return domain.Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return domain.Identity{}, errors.New("token without subject")
	}
	role, _ := claims["role"].(string)
	if role != string(domain.UserRoleAdmin) {
		role = string(domain.UserRoleUser)
	}
	return domain.Identity{UserID: sub, Role: domain.UserRole(role)}, nil
}

// UserResolver загружает пользователя для аутентифицированного запроса.
type UserResolver interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	EnsureTelegramUser(ctx context.Context, profile domain.TelegramProfile) (domain.User, error)
}

type identityKey struct{}

// WithIdentity кладёт субъект запроса в контекст.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext достаёт субъект запроса.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok && id.UserID != ""
}

// Authenticator принимает Bearer JWT или Telegram init_data.
type Authenticator struct {
	tokens   *TokenIssuer
	initData *InitDataValidator
	users    UserResolver
}

// NewAuthenticator создаёт middleware аутентификации.
func NewAuthenticator(tokens *TokenIssuer, initData *InitDataValidator, users UserResolver) *Authenticator {
	return &Authenticator{tokens: tokens, initData: initData, users: users}
}

// Middleware отклоняет запрос без валидной идентичности или от заблокированного пользователя.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.resolve(r)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "需要登录")
			return
		}
		if user.IsBanned {
			WriteError(w, http.StatusForbidden, domain.CodeForbidden, "账号已被封禁")
			return
		}
		role := user.Role
		if role == "" {
			role = domain.UserRoleUser
		}
		ctx := WithIdentity(r.Context(), domain.Identity{UserID: user.ID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request) (domain.User, error) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") && a.tokens.Enabled() {
		id, err := a.tokens.Parse(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return domain.User{}, err
		}
		return a.users.GetUser(r.Context(), id.UserID)
	}
	raw := r.Header.Get("X-Telegram-Init-Data")
	if raw == "" {
		raw = r.URL.Query().Get("init_data")
	}
	if raw == "" || a.initData == nil {
		return domain.User{}, domain.ErrUnauthorized
	}
	profile, err := a.initData.Validate(raw)
	if err != nil {
		return domain.User{}, err
	}
	return a.users.EnsureTelegramUser(r.Context(), profile)
}

// RequireAdmin пропускает только администраторов.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "需要登录")
			return
		}
		if !id.IsAdmin() {
			WriteError(w, http.StatusForbidden, domain.CodeForbidden, "需要管理员权限")
			return
		}
		next.ServeHTTP(w, r)
	})
}
