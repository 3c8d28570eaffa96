package utils

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logrus.WithError(err).Debug("failed to write response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// DecodeJSON 解析请求体
func DecodeJSON(r *http.Request, dst interface{}) error {
	return sonic.ConfigDefault.NewDecoder(r.Body).Decode(dst)
}
