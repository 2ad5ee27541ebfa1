package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"vibeailife/internal/adapters/memstore"
	"vibeailife/internal/domain"
	httpinfra "vibeailife/internal/infra/http"
	"vibeailife/internal/usecase/account"
	"vibeailife/internal/usecase/admin"
	"vibeailife/internal/usecase/billing"
	"vibeailife/internal/usecase/chat"
	"vibeailife/internal/usecase/dispatch"
	"vibeailife/internal/usecase/fortune"
	"vibeailife/internal/usecase/goals"
	"vibeailife/internal/usecase/recommend"
	"vibeailife/internal/usecase/usage"
	"vibeailife/internal/usecase/vibe"
)

type stubProvider struct {
	reply string
}

func (p *stubProvider) Name() domain.ProviderName { return domain.ProviderOpenAI }

func (p *stubProvider) Model(domain.Tier) string { return "stub" }

func (p *stubProvider) Complete(context.Context, domain.CompletionRequest) (string, error) {
	return p.reply, nil
}

func (p *stubProvider) Stream(_ context.Context, _ domain.CompletionRequest, onDelta func(string)) (string, error) {
	for _, r := range p.reply {
		onDelta(string(r))
	}
	return p.reply, nil
}

type apiHarness struct {
	t      *testing.T
	store  *memstore.Store
	router http.Handler
	tokens *httpinfra.TokenIssuer
	user   domain.User
	token  string
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	store := memstore.New()
	cache := memstore.NewCache()
	nop := zerolog.Nop()

	fortunes := fortune.NewService(store, store, time.UTC, nop)
	classifier := fortune.NewClassifier(fortune.DefaultApplyProbability, func() float64 { return 0.99 })
	disp := dispatch.New([]domain.ChatProvider{&stubProvider{reply: "我在听"}}, nop)
	usageSvc := usage.NewService(store, time.UTC)
	accounts := account.NewService(store, store, nop)

	tokens := httpinfra.NewTokenIssuer("test-secret", time.Hour)
	h := NewHandler(Deps{
		Accounts:  accounts,
		Chat:      chat.NewService(store, store, fortunes, classifier, disp, usageSvc, store, nop),
		Fortune:   fortunes,
		Usage:     usageSvc,
		Vibe:      vibe.NewService(store, usageSvc, disp, nil, store, time.UTC, nop),
		Goals:     goals.NewService(store, usageSvc, store, nop),
		Recommend: recommend.NewService(store, store, fortunes),
		Billing:   billing.NewService(nil, store, store, cache, store, billing.Config{}, nop),
		Admin:     admin.NewService(store, store, cache, time.Minute, time.UTC, nop),
		Auth:      httpinfra.NewAuthenticator(tokens, nil, accounts).Middleware,
		Logger:    nop,
	})
	r := chi.NewRouter()
	h.Mount(r)

	a := &apiHarness{t: t, store: store, router: r, tokens: tokens}
	a.user = store.PutUser(domain.User{ID: "u1", Name: "小林"})
	a.token = a.tokenFor(a.user)
	return a
}

func (a *apiHarness) tokenFor(u domain.User) string {
	a.t.Helper()
	tok, err := a.tokens.Issue(domain.Identity{UserID: u.ID, Role: u.Role})
	if err != nil {
		a.t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (a *apiHarness) request(method, path, body, token string, header map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *apiHarness) do(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.request(method, path, body, a.token, nil)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) apiResponse {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("статус: ожидали %d, получили %d (%s)", wantStatus, rec.Code, rec.Body.String())
	}
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не JSON: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func (a *apiHarness) seedFortune() {
	a.t.Helper()
	err := a.store.UpsertFortuneEntry(context.Background(), domain.FortuneEntry{
		ID:             "f1",
		Type:           domain.FortuneTypeGeneral,
		Level:          domain.FortuneLevelGood,
		Title:          "静水流深",
		Text:           "静水流深，沉稳致远",
		Interpretation: "慢下来",
		Tone:           domain.FortuneToneCalming,
	})
	if err != nil {
		a.t.Fatalf("seed: %v", err)
	}
}

func (a *apiHarness) newConversation() string {
	a.t.Helper()
	resp := decode(a.t, a.do(http.MethodPost, "/api/v1/chat/conversations", `{"mode":"coach"}`), http.StatusOK)
	var conv struct {
		ID   string `json:"id"`
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(resp.Data, &conv); err != nil || conv.ID == "" {
		a.t.Fatalf("диалог не создан: %v %s", err, resp.Data)
	}
	if conv.Mode != "COACH" {
		a.t.Fatalf("режим: ожидали COACH, получили %s", conv.Mode)
	}
	return conv.ID
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	a := newAPI(t)
	resp := decode(t, a.request(http.MethodGet, "/api/v1/fortune/today", "", "", nil), http.StatusUnauthorized)
	if resp.Error.Code != domain.CodeUnauthorized {
		t.Fatalf("код: %s", resp.Error.Code)
	}
	resp = decode(t, a.request(http.MethodGet, "/api/v1/fortune/today", "", "garbage", nil), http.StatusUnauthorized)
	if resp.Error.Code != domain.CodeUnauthorized {
		t.Fatalf("код: %s", resp.Error.Code)
	}
}

func TestBannedUserIsForbidden(t *testing.T) {
	a := newAPI(t)
	banned := a.store.PutUser(domain.User{ID: "u-banned", IsBanned: true})
	resp := decode(t, a.request(http.MethodGet, "/api/v1/goals", "", a.tokenFor(banned), nil), http.StatusForbidden)
	if resp.Error.Code != domain.CodeForbidden {
		t.Fatalf("код: %s", resp.Error.Code)
	}
}

func TestDrawFortuneOncePerDay(t *testing.T) {
	a := newAPI(t)
	a.seedFortune()

	resp := decode(t, a.do(http.MethodPost, "/api/v1/fortune/draw", ""), http.StatusOK)
	var drawn struct {
		Fortune struct {
			Title string `json:"title"`
		} `json:"fortune"`
		DrawDate string `json:"drawDate"`
	}
	if err := json.Unmarshal(resp.Data, &drawn); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if drawn.Fortune.Title != "静水流深" || len(drawn.DrawDate) != len(dateLayout) {
		t.Fatalf("неожиданный ответ: %s", resp.Data)
	}

	resp = decode(t, a.do(http.MethodPost, "/api/v1/fortune/draw", `{"type":"GENERAL"}`), http.StatusBadRequest)
	if resp.Error.Code != domain.CodeAlreadyDrawn {
		t.Fatalf("повторное вытягивание: код %s", resp.Error.Code)
	}

	resp = decode(t, a.do(http.MethodGet, "/api/v1/fortune/today", ""), http.StatusOK)
	var status struct {
		HasDrawn bool `json:"hasDrawn"`
		CanDraw  bool `json:"canDraw"`
	}
	_ = json.Unmarshal(resp.Data, &status)
	if !status.HasDrawn || status.CanDraw {
		t.Fatalf("статус дня: %s", resp.Data)
	}
}

func TestDrawAfterSkipRejected(t *testing.T) {
	a := newAPI(t)
	a.seedFortune()

	decode(t, a.do(http.MethodPost, "/api/v1/fortune/skip", ""), http.StatusOK)
	resp := decode(t, a.do(http.MethodPost, "/api/v1/fortune/draw", ""), http.StatusBadRequest)
	if resp.Success || resp.Error.Code != domain.CodeAlreadyDrawn {
		t.Fatalf("вытягивание после пропуска: %+v", resp)
	}

	resp = decode(t, a.do(http.MethodGet, "/api/v1/fortune/today", ""), http.StatusOK)
	var status struct {
		Skipped bool            `json:"skipped"`
		Fortune json.RawMessage `json:"fortune"`
	}
	_ = json.Unmarshal(resp.Data, &status)
	if !status.Skipped || (len(status.Fortune) != 0 && string(status.Fortune) != "null") {
		t.Fatalf("статус дня после пропуска: %s", resp.Data)
	}
}

func TestDrawFortuneEmptyCatalog(t *testing.T) {
	a := newAPI(t)
	resp := decode(t, a.do(http.MethodPost, "/api/v1/fortune/draw", `{"type":"career"}`), http.StatusInternalServerError)
	if resp.Error.Code != domain.CodeNoFortuneAvailable {
		t.Fatalf("код: %s", resp.Error.Code)
	}
	resp = decode(t, a.do(http.MethodPost, "/api/v1/fortune/draw", `{"type":"LOVE"}`), http.StatusBadRequest)
	if resp.Error.Code != domain.CodeInvalidInput {
		t.Fatalf("код: %s", resp.Error.Code)
	}
}

func TestSendMessageJSON(t *testing.T) {
	a := newAPI(t)
	id := a.newConversation()

	resp := decode(t, a.do(http.MethodPost, "/api/v1/chat/conversations/"+id+"/messages", `{"content":"今天有点累"}`), http.StatusOK)
	var body struct {
		Message messageView `json:"message"`
	}
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message.Role != string(domain.MessageRoleAssistant) || body.Message.Content != "我在听" {
		t.Fatalf("неожиданный ответ: %+v", body.Message)
	}

	resp = decode(t, a.do(http.MethodGet, "/api/v1/chat/conversations/"+id+"/messages", ""), http.StatusOK)
	var list struct {
		Messages []messageView `json:"messages"`
	}
	_ = json.Unmarshal(resp.Data, &list)
	if len(list.Messages) != 2 || list.Messages[0].Role != string(domain.MessageRoleUser) {
		t.Fatalf("история: %+v", list.Messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	a := newAPI(t)
	id := a.newConversation()
	for _, body := range []string{`{"content":""}`, `{"content":"   "}`, `{"content":"` + strings.Repeat("字", 2001) + `"}`, `not json`} {
		resp := decode(t, a.do(http.MethodPost, "/api/v1/chat/conversations/"+id+"/messages", body), http.StatusBadRequest)
		if resp.Error.Code != domain.CodeInvalidInput {
			t.Fatalf("тело %.20q: код %s", body, resp.Error.Code)
		}
	}
}

func TestSendMessageStream(t *testing.T) {
	a := newAPI(t)
	a.seedFortune()
	if rec := a.do(http.MethodPost, "/api/v1/fortune/draw", ""); rec.Code != http.StatusOK {
		t.Fatalf("draw: %d", rec.Code)
	}
	id := a.newConversation()

	rec := a.request(http.MethodPost, "/api/v1/chat/conversations/"+id+"/messages", `{"content":"你好"}`, a.token,
		map[string]string{"Accept": "text/event-stream"})
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("ожидали SSE, получили %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	var (
		chunks []string
		done   map[string]any
	)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("событие не JSON: %q", data)
		}
		if c, ok := ev["chunk"].(string); ok {
			chunks = append(chunks, c)
		}
		if ev["done"] == true {
			done = ev
		}
	}
	if strings.Join(chunks, "") != "我在听" {
		t.Fatalf("фрагменты: %v", chunks)
	}
	if done == nil || done["full"] != "我在听" {
		t.Fatalf("нет финального события: %s", rec.Body.String())
	}
	f, ok := done["fortune"].(map[string]any)
	if !ok || f["title"] != "静水流深" {
		t.Fatalf("финальное событие без предсказания: %v", done)
	}
}

func TestStreamErrorBeforeFirstEventIsJSON(t *testing.T) {
	a := newAPI(t)
	rec := a.request(http.MethodPost, "/api/v1/chat/conversations/missing/messages", `{"content":"你好"}`, a.token,
		map[string]string{"Accept": "text/event-stream"})
	resp := decode(t, rec, http.StatusNotFound)
	if resp.Error.Code != domain.CodeNotFound {
		t.Fatalf("код: %s", resp.Error.Code)
	}
}

func TestConversationOwnership(t *testing.T) {
	a := newAPI(t)
	id := a.newConversation()
	other := a.store.PutUser(domain.User{ID: "u2"})
	rec := a.request(http.MethodGet, "/api/v1/chat/conversations/"+id, "", a.tokenFor(other), nil)
	decode(t, rec, http.StatusNotFound)
	rec = a.request(http.MethodDelete, "/api/v1/chat/conversations/"+id, "", a.tokenFor(other), nil)
	decode(t, rec, http.StatusNotFound)
	decode(t, a.do(http.MethodDelete, "/api/v1/chat/conversations/"+id, ""), http.StatusOK)
}

func TestGoalPatchDeadline(t *testing.T) {
	a := newAPI(t)
	resp := decode(t, a.do(http.MethodPost, "/api/v1/goals", `{"title":"每天跑步","deadline":"2030-01-01T00:00:00Z"}`), http.StatusOK)
	var g goalView
	if err := json.Unmarshal(resp.Data, &g); err != nil || g.Deadline == nil {
		t.Fatalf("цель: %v %s", err, resp.Data)
	}

	resp = decode(t, a.do(http.MethodPatch, "/api/v1/goals/"+g.ID, `{"progress":40}`), http.StatusOK)
	_ = json.Unmarshal(resp.Data, &g)
	if g.Progress != 40 || g.Deadline == nil {
		t.Fatalf("частичное обновление изменило лишнее: %+v", g)
	}

	resp = decode(t, a.do(http.MethodPatch, "/api/v1/goals/"+g.ID, `{"deadline":null}`), http.StatusOK)
	g = goalView{}
	_ = json.Unmarshal(resp.Data, &g)
	if g.Deadline != nil {
		t.Fatalf("deadline должен очиститься: %+v", g)
	}

	decode(t, a.do(http.MethodPatch, "/api/v1/goals/"+g.ID, `{"status":"DONE"}`), http.StatusBadRequest)

	resp = decode(t, a.do(http.MethodPost, "/api/v1/goals/"+g.ID+"/checkin", ""), http.StatusOK)
	var checkin struct {
		NewProgress int `json:"newProgress"`
	}
	_ = json.Unmarshal(resp.Data, &checkin)
	if checkin.NewProgress != 50 {
		t.Fatalf("прогресс после отметки: %d", checkin.NewProgress)
	}
}

func TestVibeValidationAndToday(t *testing.T) {
	a := newAPI(t)
	decode(t, a.do(http.MethodPost, "/api/v1/vibe", `{"mood":6,"energy":3}`), http.StatusBadRequest)

	resp := decode(t, a.do(http.MethodGet, "/api/v1/vibe/today", ""), http.StatusOK)
	if string(resp.Data) != "false" {
		t.Fatalf("до отметки: %s", resp.Data)
	}
	decode(t, a.do(http.MethodPost, "/api/v1/vibe", `{"mood":2,"energy":3,"tags":["工作"]}`), http.StatusOK)
	resp = decode(t, a.do(http.MethodGet, "/api/v1/vibe/today", ""), http.StatusOK)
	if string(resp.Data) != "true" {
		t.Fatalf("после отметки: %s", resp.Data)
	}
	decode(t, a.do(http.MethodGet, "/api/v1/vibe/trends?days=0", ""), http.StatusBadRequest)
}

func TestSettingsRoundTrip(t *testing.T) {
	a := newAPI(t)
	decode(t, a.do(http.MethodPut, "/api/v1/user/settings", `{"preferredProvider":"claude"}`), http.StatusBadRequest)
	resp := decode(t, a.do(http.MethodPut, "/api/v1/user/settings", `{"preferredProvider":"zhipu"}`), http.StatusOK)
	var s account.Settings
	_ = json.Unmarshal(resp.Data, &s)
	if s.PreferredProvider != "zhipu" {
		t.Fatalf("настройки: %+v", s)
	}
}

func TestCheckoutWithoutPaymentProvider(t *testing.T) {
	a := newAPI(t)
	resp := decode(t, a.do(http.MethodPost, "/api/v1/subscription/create-checkout", `{"plan":"PRO"}`), http.StatusServiceUnavailable)
	if resp.Error.Code != domain.CodePaymentNotConfigured {
		t.Fatalf("код: %s", resp.Error.Code)
	}
	decode(t, a.do(http.MethodPost, "/api/v1/subscription/create-checkout", `{"plan":"FREE"}`), http.StatusBadRequest)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	a := newAPI(t)
	decode(t, a.do(http.MethodGet, "/api/v1/admin/stats", ""), http.StatusForbidden)

	root := a.store.PutUser(domain.User{ID: "admin", Role: domain.UserRoleAdmin})
	adminToken := a.tokenFor(root)
	resp := decode(t, a.request(http.MethodGet, "/api/v1/admin/stats", "", adminToken, nil), http.StatusOK)
	var stats domain.UserStats
	_ = json.Unmarshal(resp.Data, &stats)
	if stats.TotalUsers != 2 {
		t.Fatalf("totalUsers: %+v", stats)
	}

	resp = decode(t, a.request(http.MethodPatch, "/api/v1/admin/users/u1/ban", `{"isBanned":true}`, adminToken, nil), http.StatusOK)
	var u userView
	_ = json.Unmarshal(resp.Data, &u)
	if !u.IsBanned {
		t.Fatalf("пользователь не заблокирован: %+v", u)
	}
	decode(t, a.do(http.MethodGet, "/api/v1/goals", ""), http.StatusForbidden)

	decode(t, a.request(http.MethodGet, "/api/v1/admin/payments?status=WHATEVER", "", adminToken, nil), http.StatusBadRequest)
}

func TestDevRoutesHiddenByDefault(t *testing.T) {
	a := newAPI(t)
	if rec := a.do(http.MethodPost, "/api/v1/fortune/clear", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("clear вне dev: ожидали 404, получили %d", rec.Code)
	}
}
