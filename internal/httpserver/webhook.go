package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"updatebot/internal/providers/telegram"
)

type UpdateDispatcher interface {
	Dispatch(ctx context.Context, u telegram.Update) error
}

// Webhook receives Bot API updates pushed by the platform.
type Webhook struct {
	Dispatcher UpdateDispatcher
	Secret     string
	Path       string

	// async hands the update off so the platform gets its 200 without waiting
	// on downstream calls. Tests replace it to run inline.
	async func(fn func())
}

func (w *Webhook) Register(m *mux.Router) {
	path := w.Path
	if path == "" {
		path = "/telegram/webhook"
	}
	m.HandleFunc(path, w.handleUpdate).Methods(http.MethodPost)
}

func (w *Webhook) handleUpdate(rw http.ResponseWriter, r *http.Request) {
	if !telegram.VerifySecretToken(w.Secret, r.Header.Get(telegram.SecretTokenHeader)) {
		http.Error(rw, ErrInvalidSecret, http.StatusUnauthorized)
		return
	}

	var u telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(rw, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	reqID := RequestIDFrom(r.Context())
	ctx := context.WithoutCancel(r.Context())
	run := func() {
		if err := w.Dispatcher.Dispatch(ctx, u); err != nil {
			slog.Error("telegram update failed", "update_id", u.UpdateID, "request_id", reqID, "err", err)
		}
	}
	if w.async != nil {
		w.async(run)
	} else {
		go run()
	}
	rw.WriteHeader(http.StatusOK)
}
