// Package handlers contains the surfaces that sit between a host game
// server and the punishment store: moderation actions, the player event
// listener and status reporting.
package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"banward/database"
	"banward/model"
	"banward/utils"
)

var (
	// ErrPlayerNotFound means the target name resolved to no known identity,
	// online or in the ledger.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrAlreadyPunished means an active record of the requested family
	// already covers the target.
	ErrAlreadyPunished = errors.New("already punished")
	// ErrNotPunished means a reversal found nothing active to lift.
	ErrNotPunished = errors.New("not punished")
)

// Host is what the game server must provide so moderation can act on
// connected players. All methods answer from live session state.
type Host interface {
	utils.OnlineResolver

	// OnlineByIP lists every connected player on the given address.
	OnlineByIP(ip string) []uuid.UUID

	// Kick disconnects a player with a message. A no-op for players that
	// are not online.
	Kick(id uuid.UUID, reason string)
}

// Actor identifies who issued a moderation action.
type Actor struct {
	ID   *uuid.UUID
	Name string
}

// Console is the actor for actions issued without a player identity.
func Console() Actor {
	return Actor{Name: model.ConsoleName}
}

// Page is one page of ledger records with pagination bookkeeping.
type Page struct {
	Records []model.PunishmentRecord
	Total   int
	Page    int
	Pages   int
}

// PageSize is how many records each History and BanList page carries.
const PageSize = 10

// Moderation executes ban, mute, kick and reversal actions against the
// store. It blocks the calling goroutine on store waits, so it belongs on
// command threads, never on the simulation thread. host may be nil for
// headless use; kicks then simply do not happen.
type Moderation struct {
	store *database.Manager
	cache *utils.PlayerCache
	host  Host
	log   *zap.SugaredLogger
	wait  time.Duration
}

// NewModeration wires the action layer. A non-positive wait falls back
// to five seconds.
func NewModeration(store *database.Manager, cache *utils.PlayerCache, host Host, log *zap.SugaredLogger, wait time.Duration) *Moderation {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Moderation{store: store, cache: cache, host: host, log: log, wait: wait}
}

// Ban permanently bans a player by name.
func (m *Moderation) Ban(issuer Actor, targetName, reason string) (*model.PunishmentRecord, error) {
	return m.banFor(issuer, targetName, reason, 0)
}

// TempBan bans a player for a duration; duration must be positive.
func (m *Moderation) TempBan(issuer Actor, targetName, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("tempban duration must be positive, got %s", duration)
	}
	return m.banFor(issuer, targetName, reason, duration)
}

func (m *Moderation) banFor(issuer Actor, targetName, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	target, err := m.resolve(targetName)
	if err != nil {
		return nil, err
	}
	if err := m.requireNoActive(target, model.TypeBan); err != nil {
		return nil, err
	}

	kind := model.TypeBan
	if duration > 0 {
		kind = model.TypeTempBan
	}
	rec, err := m.record(kind, &target, targetName, "", issuer, reason, duration)
	if err != nil {
		return nil, err
	}
	m.kick(target, rec)
	m.log.Infow("player banned", "target", targetName, "issuer", issuer.Name, "duration", utils.FormatDuration(duration))
	return rec, nil
}

// Mute permanently mutes a player by name.
func (m *Moderation) Mute(issuer Actor, targetName, reason string) (*model.PunishmentRecord, error) {
	return m.muteFor(issuer, targetName, reason, 0)
}

// TempMute mutes a player for a duration; duration must be positive.
func (m *Moderation) TempMute(issuer Actor, targetName, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("tempmute duration must be positive, got %s", duration)
	}
	return m.muteFor(issuer, targetName, reason, duration)
}

func (m *Moderation) muteFor(issuer Actor, targetName, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	target, err := m.resolve(targetName)
	if err != nil {
		return nil, err
	}
	if err := m.requireNoActive(target, model.TypeMute); err != nil {
		return nil, err
	}

	kind := model.TypeMute
	if duration > 0 {
		kind = model.TypeTempMute
	}
	rec, err := m.record(kind, &target, targetName, "", issuer, reason, duration)
	if err != nil {
		return nil, err
	}
	m.log.Infow("player muted", "target", targetName, "issuer", issuer.Name, "duration", utils.FormatDuration(duration))
	return rec, nil
}

// Kick disconnects an online player and writes a history-only record.
// Kick records are never active; they exist so the ledger shows them.
func (m *Moderation) Kick(issuer Actor, targetName, reason string) (*model.PunishmentRecord, error) {
	if m.host == nil {
		return nil, ErrPlayerNotFound
	}
	target, ok := m.host.OnlineUUID(targetName)
	if !ok {
		return nil, ErrPlayerNotFound
	}

	rec, err := m.record(model.TypeKick, &target, targetName, "", issuer, reason, 0)
	if err != nil {
		return nil, err
	}
	m.host.Kick(target, rec.Reason)
	m.log.Infow("player kicked", "target", targetName, "issuer", issuer.Name)
	return rec, nil
}

// IPBan permanently bans an address. target may be a literal IP or a
// player name, resolved through the last-known-IP table.
func (m *Moderation) IPBan(issuer Actor, target, reason string) (*model.PunishmentRecord, error) {
	return m.ipBanFor(issuer, target, reason, 0)
}

// TempIPBan bans an address for a duration; duration must be positive.
func (m *Moderation) TempIPBan(issuer Actor, target, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("tempipban duration must be positive, got %s", duration)
	}
	return m.ipBanFor(issuer, target, reason, duration)
}

func (m *Moderation) ipBanFor(issuer Actor, target, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	ip, subjectID, subjectName, err := m.resolveIPTarget(target)
	if err != nil {
		return nil, err
	}

	active, err := m.store.ActiveIPPunishment(ip, model.TypeIPBan).GetTimeout(m.wait)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%s is %w", ip, ErrAlreadyPunished)
	}

	kind := model.TypeIPBan
	if duration > 0 {
		kind = model.TypeTempIPBan
	}
	rec, err := m.record(kind, subjectID, subjectName, ip, issuer, reason, duration)
	if err != nil {
		return nil, err
	}

	if m.host != nil {
		for _, id := range m.host.OnlineByIP(ip) {
			m.host.Kick(id, rec.Reason)
		}
	}
	m.log.Infow("ip banned", "ip", ip, "issuer", issuer.Name, "duration", utils.FormatDuration(duration))
	return rec, nil
}

// resolveIPTarget turns a name-or-IP into a normalized address plus the
// best-known identity behind it.
func (m *Moderation) resolveIPTarget(target string) (string, *uuid.UUID, string, error) {
	if ip := utils.NormalizeIP(target); utils.IsValidIP(ip) {
		id, err := m.store.LastKnownUUID(ip).GetTimeout(m.wait)
		if err != nil || id == nil {
			return ip, nil, "", nil
		}
		name, _ := m.cache.NameOf(*id)
		return ip, id, name, nil
	}

	id, err := m.resolve(target)
	if err != nil {
		return "", nil, "", err
	}
	ip, err := m.store.LastKnownIP(id).GetTimeout(m.wait)
	if err != nil {
		return "", nil, "", err
	}
	if ip == "" {
		return "", nil, "", fmt.Errorf("no known address for %s: %w", target, ErrPlayerNotFound)
	}
	return ip, &id, target, nil
}

// Unban lifts every active ban-family record for a player and writes an
// inactive reversal record.
func (m *Moderation) Unban(issuer Actor, targetName, reason string) error {
	return m.lift(issuer, targetName, reason, model.TypeBan, model.TypeUnban, "player unbanned")
}

// Unmute lifts every active mute-family record for a player.
func (m *Moderation) Unmute(issuer Actor, targetName, reason string) error {
	return m.lift(issuer, targetName, reason, model.TypeMute, model.TypeUnmute, "player unmuted")
}

func (m *Moderation) lift(issuer Actor, targetName, reason string, family, reversal model.PunishmentType, msg string) error {
	target, err := m.resolve(targetName)
	if err != nil {
		return err
	}

	n, err := m.store.DeactivatePunishments(target, family).GetTimeout(m.wait)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s is %w", targetName, ErrNotPunished)
	}

	if _, err := m.record(reversal, &target, targetName, "", issuer, reason, 0); err != nil {
		return err
	}
	m.log.Infow(msg, "target", targetName, "issuer", issuer.Name, "lifted", n)
	return nil
}

// IPUnban lifts every active IP-ban-family record for an address.
func (m *Moderation) IPUnban(issuer Actor, ip, reason string) error {
	normalized := utils.NormalizeIP(ip)
	n, err := m.store.DeactivateIPPunishments(normalized).GetTimeout(m.wait)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s is %w", normalized, ErrNotPunished)
	}

	if _, err := m.record(model.TypeIPUnban, nil, "", normalized, issuer, reason, 0); err != nil {
		return err
	}
	m.log.Infow("ip unbanned", "ip", normalized, "issuer", issuer.Name, "lifted", n)
	return nil
}

// IPInfo links an address to the identity last seen on it, plus the
// address's punishment ledger.
type IPInfo struct {
	IP          string
	SubjectID   *uuid.UUID
	SubjectName string
	History     []model.PunishmentRecord
}

// IPInfo reports what is known about an address. target may be a literal
// IP or a player name resolved through the last-known-IP table.
func (m *Moderation) IPInfo(target string) (*IPInfo, error) {
	ip, id, name, err := m.resolveIPTarget(target)
	if err != nil {
		return nil, err
	}
	history, err := m.store.IPPunishmentHistory(ip).GetTimeout(m.wait)
	if err != nil {
		return nil, err
	}
	return &IPInfo{IP: ip, SubjectID: id, SubjectName: name, History: history}, nil
}

// History pages through a target's ledger, newest first with active
// records leading. target may be a name or a literal IP.
func (m *Moderation) History(target string, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	if utils.IsValidIP(target) {
		records, err := m.store.IPPunishmentHistory(target).GetTimeout(m.wait)
		if err != nil {
			return nil, err
		}
		return slicePage(records, page), nil
	}

	id, err := m.resolve(target)
	if err != nil {
		return nil, err
	}
	total, err := m.store.PunishmentsCountBySubject(id).GetTimeout(m.wait)
	if err != nil {
		return nil, err
	}
	records, err := m.store.PunishmentsBySubject(id, PageSize, (page-1)*PageSize).GetTimeout(m.wait)
	if err != nil {
		return nil, err
	}
	return &Page{Records: records, Total: total, Page: page, Pages: pageCount(total)}, nil
}

// BanList pages through every currently active ban, temp-ban and IP ban.
func (m *Moderation) BanList(page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	records, err := m.store.ActivePunishments([]model.PunishmentType{
		model.TypeBan, model.TypeTempBan, model.TypeIPBan, model.TypeTempIPBan,
	}).GetTimeout(m.wait)
	if err != nil {
		return nil, err
	}
	return slicePage(records, page), nil
}

func (m *Moderation) resolve(name string) (uuid.UUID, error) {
	id, ok := m.cache.Resolve(name, m.wait)
	if !ok {
		return uuid.UUID{}, fmt.Errorf("%s: %w", name, ErrPlayerNotFound)
	}
	return id, nil
}

func (m *Moderation) requireNoActive(target uuid.UUID, family model.PunishmentType) error {
	active, err := m.store.ActivePunishment(target, family).GetTimeout(m.wait)
	if err != nil {
		return err
	}
	if active != nil {
		return fmt.Errorf("target is %w", ErrAlreadyPunished)
	}
	return nil
}

func (m *Moderation) record(kind model.PunishmentType, subjectID *uuid.UUID, subjectName, subjectIP string, issuer Actor, reason string, duration time.Duration) (*model.PunishmentRecord, error) {
	rec := model.NewPunishment(kind, subjectID, subjectName, subjectIP, issuer.ID, issuer.Name, reason, duration)
	if _, err := m.store.AddPunishment(rec).GetTimeout(m.wait); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *Moderation) kick(target uuid.UUID, rec *model.PunishmentRecord) {
	if m.host == nil {
		return
	}
	m.host.Kick(target, rec.Reason)
}

func slicePage(records []model.PunishmentRecord, page int) *Page {
	total := len(records)
	start := (page - 1) * PageSize
	if start > total {
		start = total
	}
	end := start + PageSize
	if end > total {
		end = total
	}
	return &Page{Records: records[start:end], Total: total, Page: page, Pages: pageCount(total)}
}

func pageCount(total int) int {
	pages := (total + PageSize - 1) / PageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}
