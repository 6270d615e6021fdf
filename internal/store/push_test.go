package store

import (
	"testing"

	"github.com/wrenfield/starling/internal/model"
)

func TestSubscribeUpsertsByEndpoint(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ps := NewPushStore(db)

	sub, err := ps.Subscribe(childID, familyID, "https://push.example/abc", "p256dh-1", "auth-1", "Sam's tablet")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Same endpoint with fresh keys replaces instead of duplicating.
	again, err := ps.Subscribe(childID, familyID, "https://push.example/abc", "p256dh-2", "auth-2", "Sam's tablet")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if again.ID != sub.ID {
		t.Errorf("resubscribe id = %d, want %d", again.ID, sub.ID)
	}
	if again.P256dhKey != "p256dh-2" {
		t.Errorf("p256dh = %q, want updated key", again.P256dhKey)
	}

	subs, err := ps.ListByMember(childID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription, got %d", len(subs))
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ps := NewPushStore(db)

	if _, err := ps.Subscribe(childID, familyID, "https://push.example/abc", "k", "a", ""); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := ps.DeleteByEndpoint("https://push.example/abc"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	subs, err := ps.ListByMember(childID)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected 0 subscriptions, got %d", len(subs))
	}
}

func TestPreferenceDefaultsEnabled(t *testing.T) {
	db := openTestDB(t)
	familyID, _, childID := seedFamily(t, db)
	ps := NewPushStore(db)

	enabled, err := ps.PreferenceEnabled(childID, model.NotifTaskApproved)
	if err != nil {
		t.Fatalf("check preference: %v", err)
	}
	if !enabled {
		t.Error("unset preference should default to enabled")
	}

	if err := ps.SetPreference(childID, familyID, model.NotifTaskApproved, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	enabled, _ = ps.PreferenceEnabled(childID, model.NotifTaskApproved)
	if enabled {
		t.Error("disabled preference reported enabled")
	}

	// Flip it back through the upsert path.
	if err := ps.SetPreference(childID, familyID, model.NotifTaskApproved, true); err != nil {
		t.Fatalf("re-enable preference: %v", err)
	}
	enabled, _ = ps.PreferenceEnabled(childID, model.NotifTaskApproved)
	if !enabled {
		t.Error("re-enabled preference reported disabled")
	}

	prefs, err := ps.ListPreferences(childID)
	if err != nil {
		t.Fatalf("list preferences: %v", err)
	}
	if len(prefs) != 1 {
		t.Errorf("expected 1 preference row, got %d", len(prefs))
	}
}
