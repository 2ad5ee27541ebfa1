package http

import (
	"encoding/json"
	"net/http"
)

// ErrorBody: единый формат ошибки API.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteJSON отправляет JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
