package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"banward/model"
	"banward/utils"
)

func newTestListener(t *testing.T) (*PlayerListener, *utils.PlayerCache) {
	t.Helper()
	store := newTestStore(t)
	cache := utils.NewPlayerCache(nil, store)
	l := NewPlayerListener(store, cache, zap.NewNop().Sugar(), time.Second, time.Second)
	return l, cache
}

func TestHandleLoginAllowed(t *testing.T) {
	l, cache := newTestListener(t)
	steve := uuid.New()

	dec := l.HandleLogin("Steve", steve, "10.0.0.7:25565")
	if !dec.Allowed {
		t.Fatalf("clean login denied: %+v", dec)
	}

	// The address write is asynchronous; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ip, err := l.store.LastKnownIP(steve).GetTimeout(time.Second)
		if err == nil && ip == "10.0.0.7" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("address never recorded, got %q err %v", ip, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if name, ok := cache.NameOf(steve); !ok || name != "Steve" {
		t.Errorf("cache not warmed: (%q, %v)", name, ok)
	}
}

func TestHandleLoginDeniedByBan(t *testing.T) {
	l, _ := newTestListener(t)
	steve := uuid.New()

	rec := model.NewPunishment(model.TypeBan, &steve, "Steve", "", nil, model.ConsoleName, "griefing", 0)
	if _, err := l.store.AddPunishment(rec).GetTimeout(time.Second); err != nil {
		t.Fatalf("seed ban: %v", err)
	}

	dec := l.HandleLogin("Steve", steve, "10.0.0.7:25565")
	if dec.Allowed {
		t.Fatal("banned player allowed in")
	}
	if dec.Denial == nil || dec.Denial.Kind != model.TypeBan {
		t.Errorf("denial record = %+v", dec.Denial)
	}
	if dec.Message == "" {
		t.Error("denial carries no message")
	}
}

func TestHandleLoginDeniedByIPBan(t *testing.T) {
	l, _ := newTestListener(t)

	rec := model.NewPunishment(model.TypeIPBan, nil, "", "10.0.0.7", nil, model.ConsoleName, "vpn range", 0)
	if _, err := l.store.AddPunishment(rec).GetTimeout(time.Second); err != nil {
		t.Fatalf("seed ip ban: %v", err)
	}

	// A fresh identity on the banned address is still turned away.
	dec := l.HandleLogin("Alt", uuid.New(), "10.0.0.7:25565")
	if dec.Allowed {
		t.Fatal("player on banned address allowed in")
	}
	if dec.Denial == nil || dec.Denial.Kind != model.TypeIPBan {
		t.Errorf("denial record = %+v", dec.Denial)
	}
}

func TestHandleLoginExpiredBanAllows(t *testing.T) {
	l, _ := newTestListener(t)
	steve := uuid.New()

	now := time.Now().UnixMilli()
	rec := &model.PunishmentRecord{
		SubjectID: &steve, SubjectName: "Steve", IssuerName: model.ConsoleName,
		Kind: model.TypeTempBan, Reason: "old", IssuedAt: now - 10_000, ExpiresAt: now - 5_000, Active: true,
	}
	if _, err := l.store.AddPunishment(rec).GetTimeout(time.Second); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if dec := l.HandleLogin("Steve", steve, "10.0.0.7"); !dec.Allowed {
		t.Errorf("expired ban still blocks login: %+v", dec)
	}
}

func TestHandleLoginRenamePropagation(t *testing.T) {
	l, cache := newTestListener(t)
	steve := uuid.New()

	rec := model.NewPunishment(model.TypeKick, &steve, "Steve", "", nil, model.ConsoleName, "", 0)
	if _, err := l.store.AddPunishment(rec).GetTimeout(time.Second); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache.Put("Steve", steve)

	if dec := l.HandleLogin("Steve_Renamed", steve, "10.0.0.7"); !dec.Allowed {
		t.Fatalf("login denied: %+v", dec)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		history, err := l.store.PunishmentHistory(steve).GetTimeout(time.Second)
		if err == nil && len(history) == 1 && history[0].SubjectName == "Steve_Renamed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("history never picked up the new name")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleChat(t *testing.T) {
	l, _ := newTestListener(t)
	steve := uuid.New()

	if mute := l.HandleChat(steve); mute != nil {
		t.Errorf("unmuted player blocked: %+v", mute)
	}

	rec := model.NewPunishment(model.TypeTempMute, &steve, "Steve", "", nil, model.ConsoleName, "spam", time.Hour)
	if _, err := l.store.AddPunishment(rec).GetTimeout(time.Second); err != nil {
		t.Fatalf("seed mute: %v", err)
	}
	mute := l.HandleChat(steve)
	if mute == nil || mute.Kind != model.TypeTempMute {
		t.Errorf("active mute not returned: %+v", mute)
	}
}
