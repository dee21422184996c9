package model

import (
	"time"

	"github.com/google/uuid"
)

// PunishmentType identifies the kind of a punishment record. The reversal
// kinds (UNBAN, UNMUTE, IP_UNBAN) are history markers and are never active.
type PunishmentType string

const (
	TypeBan       PunishmentType = "BAN"
	TypeTempBan   PunishmentType = "TEMPBAN"
	TypeMute      PunishmentType = "MUTE"
	TypeTempMute  PunishmentType = "TEMPMUTE"
	TypeKick      PunishmentType = "KICK"
	TypeIPBan     PunishmentType = "IP_BAN"
	TypeTempIPBan PunishmentType = "TEMP_IP_BAN"
	TypeUnban     PunishmentType = "UNBAN"
	TypeUnmute    PunishmentType = "UNMUTE"
	TypeIPUnban   PunishmentType = "IP_UNBAN"
)

// ConsoleName is the issuer name recorded for punishments issued by the
// server console rather than a player moderator.
const ConsoleName = "CONSOLE"

// DefaultReason is stored when a moderator gives no reason.
const DefaultReason = "unspecified"

// Family returns every kind that shares activation semantics with t.
// A lookup or bulk deactivation by one member must affect all members:
// an unban has to lift a temp-ban just as well as a permanent one.
func (t PunishmentType) Family() []PunishmentType {
	switch t {
	case TypeBan, TypeTempBan, TypeUnban:
		return []PunishmentType{TypeBan, TypeTempBan}
	case TypeMute, TypeTempMute, TypeUnmute:
		return []PunishmentType{TypeMute, TypeTempMute}
	case TypeIPBan, TypeTempIPBan, TypeIPUnban:
		return []PunishmentType{TypeIPBan, TypeTempIPBan}
	default:
		return []PunishmentType{t}
	}
}

// IsIPFamily reports whether t belongs to the IP ban family.
func (t PunishmentType) IsIPFamily() bool {
	return t == TypeIPBan || t == TypeTempIPBan || t == TypeIPUnban
}

// IsReversal reports whether t is a history-only reversal marker.
func (t PunishmentType) IsReversal() bool {
	return t == TypeUnban || t == TypeUnmute || t == TypeIPUnban
}

// Valid reports whether t is a member of the closed kind set.
func (t PunishmentType) Valid() bool {
	switch t {
	case TypeBan, TypeTempBan, TypeMute, TypeTempMute, TypeKick,
		TypeIPBan, TypeTempIPBan, TypeUnban, TypeUnmute, TypeIPUnban:
		return true
	}
	return false
}

// PunishmentRecord represents a single punishment record in the database.
// The database table is named 'punishments'. Records are never deleted;
// history is append-only aside from the active flag flip.
type PunishmentRecord struct {
	ID          int64      // store-assigned, 0 until persisted
	SubjectID   *uuid.UUID // nil for pure IP-based records
	SubjectName string     // display name captured at punishment time
	SubjectIP   string     // normalized IP, empty unless the record concerns an IP
	IssuerID    *uuid.UUID // nil for console
	IssuerName  string
	Kind        PunishmentType
	Reason      string
	IssuedAt    int64 // epoch milliseconds
	ExpiresAt   int64 // epoch milliseconds, 0 means never
	Active      bool
}

// IsPermanent reports whether the punishment never expires.
func (r *PunishmentRecord) IsPermanent() bool {
	return r.ExpiresAt == 0
}

// IsExpired reports whether the punishment has run out. Expiry is derived
// from the clock on every call; an expired record may still be stored as
// active until the engine or the sweeper deactivates it.
func (r *PunishmentRecord) IsExpired() bool {
	return !r.IsPermanent() && time.Now().UnixMilli() > r.ExpiresAt
}

// NewPunishment builds a record stamped with the current time. A zero
// duration makes the punishment permanent. Kicks and reversal markers are
// created inactive: they exist purely as history.
func NewPunishment(kind PunishmentType, subjectID *uuid.UUID, subjectName, subjectIP string, issuerID *uuid.UUID, issuerName, reason string, duration time.Duration) *PunishmentRecord {
	if reason == "" {
		reason = DefaultReason
	}
	now := time.Now().UnixMilli()
	var expires int64
	if duration > 0 {
		expires = now + duration.Milliseconds()
	}
	return &PunishmentRecord{
		SubjectID:   subjectID,
		SubjectName: subjectName,
		SubjectIP:   subjectIP,
		IssuerID:    issuerID,
		IssuerName:  issuerName,
		Kind:        kind,
		Reason:      reason,
		IssuedAt:    now,
		ExpiresAt:   expires,
		Active:      !kind.IsReversal() && kind != TypeKick,
	}
}
