package webhook

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// maxBody bounds the accepted body, larger ones are rejected whole.
const maxBody = 64 << 10

type payload struct {
	Message string `json:"message"`
	Text    string `json:"text"`
}

// Handler accepts alert messages as a plain text body or as a JSON object
// with a message field and hands them to exec. It answers as soon as the
// message has been handed over.
type Handler struct {
	exec func(msg string)
	log  *zap.Logger
}

func New(exec func(msg string), log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{exec: exec, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.log.Warn("webhook body too large", zap.String("remote", r.RemoteAddr), zap.Int64("limit", tooLarge.Limit))
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		h.log.Warn("couldn't read webhook body", zap.Error(err))
		http.Error(w, "couldn't read body", http.StatusBadRequest)
		return
	}
	msg := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var p payload
		if err := sonic.Unmarshal(body, &p); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		msg = p.Message
		if msg == "" {
			msg = p.Text
		}
	}
	if strings.TrimSpace(msg) == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}
	h.log.Debug("webhook message", zap.String("remote", r.RemoteAddr), zap.Int("bytes", len(msg)))
	h.exec(msg)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
