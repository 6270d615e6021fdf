package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/wrenfield/starling/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired means the push service reported the subscription gone; the
// caller should delete the stored endpoint.
var ErrExpired = errors.New("push subscription expired")

const (
	subscriber = "mailto:noreply@starling.family"
	messageTTL = 86400 // seconds the push service may queue an undelivered message
)

// Payload is the JSON body handed to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Service sends Web Push messages signed with the family's VAPID key pair.
type Service struct {
	publicKey  string
	privateKey string
}

func NewService(publicKey, privateKey string) *Service {
	return &Service{publicKey: publicKey, privateKey: privateKey}
}

// VAPIDPublicKey is handed to browsers when they subscribe.
func (s *Service) VAPIDPublicKey() string {
	return s.publicKey
}

// Send delivers one payload to one subscription.
func (s *Service) Send(sub *model.PushSubscription, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dhKey, Auth: sub.AuthKey},
	}
	resp, err := webpush.SendNotification(body, target, &webpush.Options{
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		Subscriber:      subscriber,
		TTL:             messageTTL,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys mints a fresh key pair, for first boot on a new install.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
