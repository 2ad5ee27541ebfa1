package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"vibeailife/internal/domain"
)

// InitDataValidator проверяет подпись Telegram WebApp init_data.
type InitDataValidator struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewInitDataValidator создаёт валидатор по токену бота. maxAge <= 0 отключает проверку давности.
func NewInitDataValidator(botToken string, maxAge time.Duration) *InitDataValidator {
	if botToken == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return &InitDataValidator{secret: mac.Sum(nil), maxAge: maxAge, now: time.Now}
}

type initDataUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
}

// Validate проверяет hash и возвращает профиль пользователя.
func (v *InitDataValidator) Validate(initData string) (domain.TelegramProfile, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return domain.TelegramProfile{}, fmt.Errorf("parse init_data: %w", err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return domain.TelegramProfile{}, errors.New("init_data without hash")
	}
	if !v.checkSignature(values, hash) {
		return domain.TelegramProfile{}, errors.New("init_data signature mismatch")
	}
	if v.maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return domain.TelegramProfile{}, errors.New("init_data without auth_date")
		}
		if v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
			return domain.TelegramProfile{}, errors.New("init_data expired")
		}
	}
	var user initDataUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return domain.TelegramProfile{}, errors.New("init_data without user")
	}
	return domain.TelegramProfile{
		TGUserID:  user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		Locale:    user.LanguageCode,
	}, nil
}

func (v *InitDataValidator) checkSignature(values url.Values, hash string) bool {
	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), expected)
}
