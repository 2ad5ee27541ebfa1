package domain

import "errors"

var (
	// ErrNotFound: сущность не найдена или принадлежит другому пользователю.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDrawn: за сегодня уже есть запись (вытянуто или пропущено).
	ErrAlreadyDrawn = errors.New("already drawn today")

	// ErrNoFortuneAvailable: каталог пуст для запрошенной категории.
	ErrNoFortuneAvailable = errors.New("no fortune available")

	// ErrRateLimited: исчерпан лимит тарифа.
	ErrRateLimited = errors.New("rate limit exceeded")

	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrPaymentNotConfigured = errors.New("payment not configured")
	ErrNoSubscription       = errors.New("no active subscription")
	ErrPriceNotFound        = errors.New("price not configured")
)

// Коды ошибок на границе API.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeAlreadyDrawn         = "ALREADY_DRAWN"
	CodeNoFortuneAvailable   = "NO_FORTUNE_AVAILABLE"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodePaymentNotConfigured = "PAYMENT_NOT_CONFIGURED"
	CodeNoSubscription       = "NO_SUBSCRIPTION"
	CodePriceNotFound        = "PRICE_NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

// RateLimitError несёт сообщение для пользователя с предложением сменить тариф.
type RateLimitError struct {
	Resource string
	Message  string
}

func (e *RateLimitError) Error() string {
	return "rate limit exceeded: " + e.Resource
}

// Unwrap позволяет errors.Is(err, ErrRateLimited).
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ErrorCode сопоставляет цепочку ошибок со стабильным кодом.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAlreadyDrawn):
		return CodeAlreadyDrawn
	case errors.Is(err, ErrNoFortuneAvailable):
		return CodeNoFortuneAvailable
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimitExceeded
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrPaymentNotConfigured):
		return CodePaymentNotConfigured
	case errors.Is(err, ErrNoSubscription):
		return CodeNoSubscription
	case errors.Is(err, ErrPriceNotFound):
		return CodePriceNotFound
	default:
		return CodeInternal
	}
}
