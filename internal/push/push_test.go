package push

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wrenfield/starling/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key = %d bytes, want 65 (uncompressed P-256 point)", len(pubBytes))
	}
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key = %d bytes, want 32", len(privBytes))
	}

	pub2, _, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate second pair: %v", err)
	}
	if pub == pub2 {
		t.Error("two generations produced the same public key")
	}
}

// testSubscription builds a subscription with real client-side keys so the
// library can complete payload encryption against a test endpoint.
func testSubscription(t *testing.T, endpoint string) *model.PushSubscription {
	t.Helper()
	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	if _, err := rand.Read(auth); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return &model.PushSubscription{
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(clientKey.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	return NewService(pub, priv)
}

func TestSendDeliversEncryptedBody(t *testing.T) {
	var gotBody int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 4096)
		n, _ := r.Body.Read(buf)
		gotBody = n
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	svc := newTestService(t)
	err := svc.Send(testSubscription(t, srv.URL), Payload{Title: "Task approved", Body: "5 stars earned"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody == 0 {
		t.Error("push endpoint received an empty body")
	}
}

func TestSendExpiredSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	svc := newTestService(t)
	err := svc.Send(testSubscription(t, srv.URL), Payload{Title: "hi"})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestSendServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := newTestService(t)
	err := svc.Send(testSubscription(t, srv.URL), Payload{Title: "hi"})
	if err == nil || errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want non-expired error", err)
	}
}
