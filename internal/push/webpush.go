package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"kittylog/internal/config"
	"kittylog/internal/store"
)

// pushTTL caps how long the push service holds an undelivered message.
// Reminders are useless after an hour; the next run resends if still due.
const pushTTL = 3600

// WebPushSender delivers via the Web Push protocol with VAPID auth.
type WebPushSender struct {
	creds  config.Push
	client *http.Client
}

func NewWebPushSender(creds config.Push) *WebPushSender {
	return &WebPushSender{
		creds:  creds,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebPushSender) Send(ctx context.Context, sub store.Subscription, m Message) error {
	payload, err := json.Marshal(map[string]string{
		"title":   m.Title,
		"message": m.Body,
		"url":     m.ClickURL,
	})
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		Subscriber:      w.creds.VAPIDSubject,
		VAPIDPublicKey:  w.creds.VAPIDPublicKey,
		VAPIDPrivateKey: w.creds.VAPIDPrivateKey,
		TTL:             pushTTL,
	})
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps a push-service HTTP status to the dispatcher's error
// taxonomy. 404 and 410 mean the subscription no longer exists.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return &PermanentError{Status: status}
	default:
		return fmt.Errorf("push service returned %d", status)
	}
}
