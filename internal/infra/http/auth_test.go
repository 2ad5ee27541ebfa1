package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"vibeailife/internal/domain"
)

type fakeUsers struct {
	users map[string]domain.User
	tg    map[int64]domain.User
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) EnsureTelegramUser(_ context.Context, p domain.TelegramProfile) (domain.User, error) {
	u, ok := f.tg[p.TGUserID]
	if !ok {
		u = domain.User{ID: "tg-" + strconv.FormatInt(p.TGUserID, 10), TGUserID: p.TGUserID, Name: p.DisplayName()}
		f.tg[p.TGUserID] = u
	}
	return u, nil
}

func signInitData(t *testing.T, botToken string, values url.Values) string {
	t.Helper()
	pairs := make([]string, 0, len(values))
	for k := range values {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	sort.Strings(pairs)
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	raw, err := issuer.Issue(domain.Identity{UserID: "u1", Role: domain.UserRoleAdmin})
	if err != nil {
		t.Fatalf("выпуск токена: %v", err)
	}
	id, err := issuer.Parse(raw)
	if err != nil {
		t.Fatalf("разбор токена: %v", err)
	}
	if id.UserID != "u1" || !id.IsAdmin() {
		t.Fatalf("неожиданная идентичность: %+v", id)
	}
	if _, err := NewTokenIssuer("other", time.Hour).Parse(raw); err == nil {
		t.Fatalf("токен с чужой подписью должен отклоняться")
	}

	expired := NewTokenIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(domain.Identity{UserID: "u1"})
	if _, err := issuer.Parse(old); err == nil {
		t.Fatalf("просроченный токен должен отклоняться")
	}
}

func TestInitDataValidate(t *testing.T) {
	v := NewInitDataValidator("bot-token", time.Hour)
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", `{"id":42,"first_name":"Li","username":"li"}`)
	raw := signInitData(t, "bot-token", values)

	profile, err := v.Validate(raw)
	if err != nil {
		t.Fatalf("валидные данные отклонены: %v", err)
	}
	if profile.TGUserID != 42 || profile.DisplayName() != "Li" {
		t.Fatalf("неожиданный профиль: %+v", profile)
	}

	if _, err := NewInitDataValidator("other", time.Hour).Validate(raw); err == nil {
		t.Fatalf("подпись чужого бота должна отклоняться")
	}

	stale := url.Values{}
	stale.Set("auth_date", strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10))
	stale.Set("user", `{"id":42}`)
	if _, err := v.Validate(signInitData(t, "bot-token", stale)); err == nil {
		t.Fatalf("устаревшие данные должны отклоняться")
	}
}

func TestAuthenticatorMiddleware(t *testing.T) {
	users := &fakeUsers{
		users: map[string]domain.User{
			"u1":     {ID: "u1", Role: domain.UserRoleUser},
			"banned": {ID: "banned", IsBanned: true},
		},
		tg: map[int64]domain.User{},
	}
	issuer := NewTokenIssuer("secret", time.Hour)
	auth := NewAuthenticator(issuer, NewInitDataValidator("bot-token", 0), users)

	var got domain.Identity
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(setup func(r *http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/fortune/today", nil)
		setup(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(func(*http.Request) {}); code != http.StatusUnauthorized {
		t.Fatalf("без авторизации ожидали 401, получили %d", code)
	}

	token, _ := issuer.Issue(domain.Identity{UserID: "u1"})
	if code := do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }); code != http.StatusNoContent {
		t.Fatalf("валидный токен: ожидали 204, получили %d", code)
	}
	if got.UserID != "u1" {
		t.Fatalf("идентичность не попала в контекст: %+v", got)
	}

	bannedToken, _ := issuer.Issue(domain.Identity{UserID: "banned"})
	if code := do(func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+bannedToken) }); code != http.StatusForbidden {
		t.Fatalf("заблокированный пользователь: ожидали 403, получили %d", code)
	}

	values := url.Values{}
	values.Set("auth_date", "1")
	values.Set("user", `{"id":7,"first_name":"Wang"}`)
	initData := signInitData(t, "bot-token", values)
	if code := do(func(r *http.Request) { r.Header.Set("X-Telegram-Init-Data", initData) }); code != http.StatusNoContent {
		t.Fatalf("init_data: ожидали 204, получили %d", code)
	}
	if got.UserID != "tg-7" {
		t.Fatalf("пользователь Telegram не создан: %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats", nil)
	req = req.WithContext(WithIdentity(req.Context(), domain.Identity{UserID: "u1", Role: domain.UserRoleUser}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ожидали 403, получили %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"FORBIDDEN"`) {
		t.Fatalf("неожиданное тело: %s", rec.Body.String())
	}
}
