package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFamily(t *testing.T) {
	tests := map[string]struct {
		kind PunishmentType
		want []PunishmentType
	}{
		"ban":        {TypeBan, []PunishmentType{TypeBan, TypeTempBan}},
		"tempban":    {TypeTempBan, []PunishmentType{TypeBan, TypeTempBan}},
		"unban":      {TypeUnban, []PunishmentType{TypeBan, TypeTempBan}},
		"mute":       {TypeMute, []PunishmentType{TypeMute, TypeTempMute}},
		"tempmute":   {TypeTempMute, []PunishmentType{TypeMute, TypeTempMute}},
		"unmute":     {TypeUnmute, []PunishmentType{TypeMute, TypeTempMute}},
		"ipban":      {TypeIPBan, []PunishmentType{TypeIPBan, TypeTempIPBan}},
		"tempipban":  {TypeTempIPBan, []PunishmentType{TypeIPBan, TypeTempIPBan}},
		"ipunban":    {TypeIPUnban, []PunishmentType{TypeIPBan, TypeTempIPBan}},
		"kick alone": {TypeKick, []PunishmentType{TypeKick}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, tc.kind.Family()); diff != "" {
				t.Errorf("Family() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValid(t *testing.T) {
	for _, kind := range []PunishmentType{
		TypeBan, TypeTempBan, TypeMute, TypeTempMute, TypeKick,
		TypeIPBan, TypeTempIPBan, TypeUnban, TypeUnmute, TypeIPUnban,
	} {
		if !kind.Valid() {
			t.Errorf("%s should be valid", kind)
		}
	}
	for _, kind := range []PunishmentType{"", "BANNED", "IPTEMPBAN", "ban"} {
		if kind.Valid() {
			t.Errorf("%q should be invalid", kind)
		}
	}
}

func TestExpiry(t *testing.T) {
	now := time.Now().UnixMilli()
	tests := map[string]struct {
		expiresAt int64
		permanent bool
		expired   bool
	}{
		"permanent sentinel": {0, true, false},
		"future expiry":      {now + 60_000, false, false},
		"past expiry":        {now - 60_000, false, true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			rec := PunishmentRecord{ExpiresAt: tc.expiresAt}
			if got := rec.IsPermanent(); got != tc.permanent {
				t.Errorf("IsPermanent() = %v, want %v", got, tc.permanent)
			}
			if got := rec.IsExpired(); got != tc.expired {
				t.Errorf("IsExpired() = %v, want %v", got, tc.expired)
			}
		})
	}
}

func TestNewPunishment(t *testing.T) {
	before := time.Now().UnixMilli()
	rec := NewPunishment(TypeTempBan, nil, "Steve", "", nil, ConsoleName, "", time.Hour)
	after := time.Now().UnixMilli()

	if rec.IssuedAt < before || rec.IssuedAt > after {
		t.Errorf("IssuedAt = %d, want within [%d, %d]", rec.IssuedAt, before, after)
	}
	if want := rec.IssuedAt + time.Hour.Milliseconds(); rec.ExpiresAt != want {
		t.Errorf("ExpiresAt = %d, want %d", rec.ExpiresAt, want)
	}
	if rec.Reason != DefaultReason {
		t.Errorf("Reason = %q, want %q", rec.Reason, DefaultReason)
	}
	if !rec.Active {
		t.Error("tempban should be created active")
	}

	if perm := NewPunishment(TypeBan, nil, "Steve", "", nil, ConsoleName, "griefing", 0); !perm.IsPermanent() {
		t.Error("zero duration should make a permanent record")
	}
	if kick := NewPunishment(TypeKick, nil, "Steve", "", nil, ConsoleName, "afk", 0); kick.Active {
		t.Error("kicks must never be active")
	}
	if rev := NewPunishment(TypeUnban, nil, "Steve", "", nil, ConsoleName, "appeal", 0); rev.Active {
		t.Error("reversal markers must never be active")
	}
}
