package relay

import (
	"context"
	"encoding/json"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPush sends VAPID web-push notifications to stored subscriptions.
type WebPush struct {
	subscriber string // contact mailto for the push service
	publicKey  string
	privateKey string
}

// NewWebPush returns a sender signing with the given VAPID key pair.
func NewWebPush(subscriber, publicKey, privateKey string) *WebPush {
	return &WebPush{subscriber: subscriber, publicKey: publicKey, privateKey: privateKey}
}

// Push delivers one {title, body} notification. The payload carries generic
// text only; content never reaches the push service.
func (p *WebPush) Push(ctx context.Context, rawSub json.RawMessage, title, body string) error {
	var sub webpush.Subscription
	if err := json.Unmarshal(rawSub, &sub); err != nil {
		return fmt.Errorf("decode push subscription: %w", err)
	}
	payload, err := json.Marshal(struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}{Title: title, Body: body})
	if err != nil {
		return err
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		Subscriber:      p.subscriber,
		VAPIDPublicKey:  p.publicKey,
		VAPIDPrivateKey: p.privateKey,
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push service: %s", resp.Status)
	}
	return nil
}

// Compile-time assertion that WebPush implements PushSender.
var _ PushSender = (*WebPush)(nil)
