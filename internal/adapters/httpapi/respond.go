package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"vibeailife/internal/domain"
	httpinfra "vibeailife/internal/infra/http"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func writeData(w http.ResponseWriter, data any) {
	httpinfra.WriteJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeOK(w http.ResponseWriter) {
	httpinfra.WriteJSON(w, http.StatusOK, envelope{Success: true})
}

// inputError: ошибка разбора запроса с сообщением для клиента.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Unwrap() error { return domain.ErrInvalidInput }

func invalid(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

var messages = map[string]string{
	domain.CodeNotFound:             "资源不存在",
	domain.CodeAlreadyDrawn:         "今天已经抽过签了",
	domain.CodeNoFortuneAvailable:   "暂无可用的签文",
	domain.CodeRateLimitExceeded:    "请求过于频繁，请稍后再试",
	domain.CodeInvalidInput:         "请求参数错误",
	domain.CodeUnauthorized:         "需要登录",
	domain.CodeForbidden:            "没有权限",
	domain.CodePaymentNotConfigured: "支付功能暂未开放",
	domain.CodeNoSubscription:       "没有有效的订阅",
	domain.CodePriceNotFound:        "价格未配置",
	domain.CodeInternal:             "服务器内部错误",
}

func statusFor(code string) int {
	switch code {
	case domain.CodeNotFound, domain.CodeNoSubscription:
		return http.StatusNotFound
	case domain.CodeAlreadyDrawn, domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodePaymentNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage подбирает текст ошибки для клиента.
func clientMessage(err error) string {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) && rl.Message != "" {
		return rl.Message
	}
	var ie *inputError
	if errors.As(err, &ie) {
		return ie.msg
	}
	return messages[domain.ErrorCode(err)]
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("request failed")
	}
	httpinfra.WriteError(w, status, code, clientMessage(err))
}

// decodeJSON читает тело и проверяет теги validate. optional разрешает пустое тело.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return invalid("请求体格式错误")
		}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+":"+fe.Tag())
			}
			return invalid("请求参数错误: %s", strings.Join(fields, ", "))
		}
		return invalid("请求参数错误")
	}
	return nil
}

// currentUser загружает пользователя, прошедшего аутентификацию.
func (h *Handler) currentUser(r *http.Request) (domain.User, error) {
	id, ok := httpinfra.IdentityFromContext(r.Context())
	if !ok {
		return domain.User{}, domain.ErrUnauthorized
	}
	return h.Accounts.GetUser(r.Context(), id.UserID)
}

func currentUserID(r *http.Request) string {
	id, _ := httpinfra.IdentityFromContext(r.Context())
	return id.UserID
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// offsetPage разбирает limit/offset. limit ограничен сверху 100.
func offsetPage(r *http.Request, defaultLimit int) domain.Page {
	limit := queryInt(r, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, 100)
	return domain.Page{Limit: limit, Offset: max(queryInt(r, "offset", 0), 0)}
}

type pageList struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func pageInfo(total int, page domain.Page) pageList {
	return pageList{Total: total, Limit: page.Limit, Offset: page.Offset}
}
