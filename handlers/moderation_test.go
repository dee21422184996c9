package handlers

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"banward/async"
	"banward/database"
	"banward/model"
	"banward/utils"
)

type fakeHost struct {
	mu     sync.Mutex
	byName map[string]uuid.UUID
	byID   map[uuid.UUID]string
	byIP   map[string][]uuid.UUID
	kicked []uuid.UUID
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		byName: make(map[string]uuid.UUID),
		byID:   make(map[uuid.UUID]string),
		byIP:   make(map[string][]uuid.UUID),
	}
}

func (h *fakeHost) join(name, ip string) uuid.UUID {
	id := uuid.New()
	h.byName[name] = id
	h.byID[id] = name
	h.byIP[ip] = append(h.byIP[ip], id)
	return id
}

func (h *fakeHost) OnlineUUID(name string) (uuid.UUID, bool) {
	id, ok := h.byName[name]
	return id, ok
}

func (h *fakeHost) OnlineName(id uuid.UUID) (string, bool) {
	name, ok := h.byID[id]
	return name, ok
}

func (h *fakeHost) OnlineByIP(ip string) []uuid.UUID {
	return h.byIP[ip]
}

func (h *fakeHost) Kick(id uuid.UUID, reason string) {
	h.mu.Lock()
	h.kicked = append(h.kicked, id)
	h.mu.Unlock()
}

func (h *fakeHost) kickedIDs() []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uuid.UUID, len(h.kicked))
	copy(out, h.kicked)
	return out
}

func newTestStore(t *testing.T) *database.Manager {
	t.Helper()
	log := zap.NewNop().Sugar()

	backend := database.NewSQLiteBackend(filepath.Join(t.TempDir(), "punishments.db"), log)
	if err := backend.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	exec := async.NewExecutor(4, log)
	t.Cleanup(func() { exec.Shutdown(2 * time.Second) })

	return database.NewManager(backend, exec, log, 5*time.Second)
}

func newTestModeration(t *testing.T, host Host) *Moderation {
	t.Helper()
	store := newTestStore(t)
	cache := utils.NewPlayerCache(host, store)
	return NewModeration(store, cache, host, zap.NewNop().Sugar(), 5*time.Second)
}

func TestBanKicksAndRejectsDuplicate(t *testing.T) {
	host := newFakeHost()
	steve := host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	rec, err := m.Ban(Console(), "Steve", "griefing")
	if err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if !rec.Active || !rec.IsPermanent() || rec.Kind != model.TypeBan {
		t.Errorf("unexpected ban record: %+v", rec)
	}
	if kicked := host.kickedIDs(); len(kicked) != 1 || kicked[0] != steve {
		t.Errorf("kicked = %v, want Steve", kicked)
	}

	if _, err := m.Ban(Console(), "Steve", "again"); !errors.Is(err, ErrAlreadyPunished) {
		t.Errorf("second ban error = %v, want ErrAlreadyPunished", err)
	}
	// A tempban on an already-banned player is also rejected.
	if _, err := m.TempBan(Console(), "Steve", "again", time.Hour); !errors.Is(err, ErrAlreadyPunished) {
		t.Errorf("tempban over ban error = %v, want ErrAlreadyPunished", err)
	}
}

func TestBanUnknownPlayer(t *testing.T) {
	m := newTestModeration(t, newFakeHost())
	if _, err := m.Ban(Console(), "Nobody", "x"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("Ban error = %v, want ErrPlayerNotFound", err)
	}
}

func TestTempBanDuration(t *testing.T) {
	host := newFakeHost()
	host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	if _, err := m.TempBan(Console(), "Steve", "x", 0); err == nil {
		t.Error("zero duration accepted")
	}

	rec, err := m.TempBan(Console(), "Steve", "x", time.Hour)
	if err != nil {
		t.Fatalf("TempBan: %v", err)
	}
	if rec.Kind != model.TypeTempBan || rec.IsPermanent() {
		t.Errorf("unexpected tempban record: %+v", rec)
	}
}

func TestUnbanLiftsTempBan(t *testing.T) {
	host := newFakeHost()
	steve := host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	if _, err := m.TempBan(Console(), "Steve", "x", time.Hour); err != nil {
		t.Fatalf("TempBan: %v", err)
	}
	if err := m.Unban(Console(), "Steve", "appeal accepted"); err != nil {
		t.Fatalf("Unban: %v", err)
	}

	active, err := m.store.ActivePunishment(steve, model.TypeBan).GetTimeout(time.Second)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if active != nil {
		t.Errorf("still banned after unban: %+v", active)
	}

	// The reversal lands in history as an inactive marker.
	history, err := m.store.PunishmentHistory(steve).GetTimeout(time.Second)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	foundReversal := false
	for _, rec := range history {
		if rec.Kind == model.TypeUnban {
			foundReversal = true
			if rec.Active {
				t.Error("reversal marker is active")
			}
		}
	}
	if !foundReversal {
		t.Error("no reversal marker in history")
	}

	if err := m.Unban(Console(), "Steve", "again"); !errors.Is(err, ErrNotPunished) {
		t.Errorf("second unban error = %v, want ErrNotPunished", err)
	}
}

func TestMuteDoesNotKick(t *testing.T) {
	host := newFakeHost()
	host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	if _, err := m.Mute(Console(), "Steve", "spam"); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if kicked := host.kickedIDs(); len(kicked) != 0 {
		t.Errorf("mute kicked %v", kicked)
	}
	if err := m.Unmute(Console(), "Steve", "ok"); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
}

func TestKickIsHistoryOnly(t *testing.T) {
	host := newFakeHost()
	steve := host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	rec, err := m.Kick(Console(), "Steve", "afk")
	if err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if rec.Active {
		t.Error("kick record is active")
	}
	if kicked := host.kickedIDs(); len(kicked) != 1 || kicked[0] != steve {
		t.Errorf("kicked = %v, want Steve", kicked)
	}

	if _, err := m.Kick(Console(), "Offline", "x"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("kick of offline player = %v, want ErrPlayerNotFound", err)
	}
}

func TestIPBanByLiteralAddress(t *testing.T) {
	host := newFakeHost()
	a := host.join("Steve", "10.0.0.7")
	b := host.join("Alex", "10.0.0.7")
	m := newTestModeration(t, host)

	rec, err := m.IPBan(Console(), "10.0.0.7", "shared griefing")
	if err != nil {
		t.Fatalf("IPBan: %v", err)
	}
	if rec.SubjectIP != "10.0.0.7" || rec.Kind != model.TypeIPBan {
		t.Errorf("unexpected record: %+v", rec)
	}
	kicked := host.kickedIDs()
	if len(kicked) != 2 {
		t.Fatalf("kicked %d players, want both on the address", len(kicked))
	}
	for _, id := range kicked {
		if id != a && id != b {
			t.Errorf("kicked stranger %v", id)
		}
	}

	if _, err := m.IPBan(Console(), "10.0.0.7", "x"); !errors.Is(err, ErrAlreadyPunished) {
		t.Errorf("second ip ban = %v, want ErrAlreadyPunished", err)
	}

	if err := m.IPUnban(Console(), "10.0.0.7", "ok"); err != nil {
		t.Fatalf("IPUnban: %v", err)
	}
	if err := m.IPUnban(Console(), "10.0.0.7", "again"); !errors.Is(err, ErrNotPunished) {
		t.Errorf("second ip unban = %v, want ErrNotPunished", err)
	}
}

func TestIPBanByName(t *testing.T) {
	host := newFakeHost()
	steve := host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	// Without a recorded address the target cannot be ip-banned by name.
	if _, err := m.IPBan(Console(), "Steve", "x"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("ip ban without known address = %v, want ErrPlayerNotFound", err)
	}

	if _, err := m.store.SavePlayerIP(steve, "10.0.0.7").GetTimeout(time.Second); err != nil {
		t.Fatalf("save ip: %v", err)
	}

	rec, err := m.IPBan(Console(), "Steve", "x")
	if err != nil {
		t.Fatalf("IPBan by name: %v", err)
	}
	if rec.SubjectIP != "10.0.0.7" {
		t.Errorf("record ip = %q, want the last known address", rec.SubjectIP)
	}
	if rec.SubjectID == nil || *rec.SubjectID != steve {
		t.Errorf("record subject = %v, want %v", rec.SubjectID, steve)
	}
}

func TestIPInfo(t *testing.T) {
	host := newFakeHost()
	steve := host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	if _, err := m.IPInfo("Nobody"); !errors.Is(err, ErrPlayerNotFound) {
		t.Errorf("IPInfo of unknown name = %v, want ErrPlayerNotFound", err)
	}

	if _, err := m.store.SavePlayerIP(steve, "10.0.0.7").GetTimeout(time.Second); err != nil {
		t.Fatalf("save ip: %v", err)
	}
	if _, err := m.IPBan(Console(), "10.0.0.7", "vpn range"); err != nil {
		t.Fatalf("IPBan: %v", err)
	}

	info, err := m.IPInfo("10.0.0.7:25565")
	if err != nil {
		t.Fatalf("IPInfo by address: %v", err)
	}
	if info.IP != "10.0.0.7" {
		t.Errorf("info ip = %q, want normalized address", info.IP)
	}
	if info.SubjectID == nil || *info.SubjectID != steve {
		t.Errorf("info subject = %v, want %v", info.SubjectID, steve)
	}
	if info.SubjectName != "Steve" {
		t.Errorf("info name = %q, want Steve", info.SubjectName)
	}
	if len(info.History) != 1 || info.History[0].Kind != model.TypeIPBan {
		t.Errorf("info history = %+v, want the single ip ban", info.History)
	}

	// The same report is reachable through the player name.
	byName, err := m.IPInfo("Steve")
	if err != nil {
		t.Fatalf("IPInfo by name: %v", err)
	}
	if byName.IP != "10.0.0.7" {
		t.Errorf("by-name ip = %q, want the last known address", byName.IP)
	}
}

func TestHistoryAndBanList(t *testing.T) {
	host := newFakeHost()
	host.join("Steve", "10.0.0.7")
	m := newTestModeration(t, host)

	for i := 0; i < 12; i++ {
		if _, err := m.Kick(Console(), "Steve", "x"); err != nil {
			t.Fatalf("Kick %d: %v", i, err)
		}
	}
	if _, err := m.Ban(Console(), "Steve", "x"); err != nil {
		t.Fatalf("Ban: %v", err)
	}

	page, err := m.History("Steve", 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if page.Total != 13 || page.Pages != 2 || len(page.Records) != PageSize {
		t.Errorf("page 1 = total %d pages %d len %d", page.Total, page.Pages, len(page.Records))
	}
	// Active records lead the first page.
	if page.Records[0].Kind != model.TypeBan {
		t.Errorf("first record is %s, want the active ban", page.Records[0].Kind)
	}

	page2, err := m.History("Steve", 2)
	if err != nil {
		t.Fatalf("History page 2: %v", err)
	}
	if len(page2.Records) != 3 {
		t.Errorf("page 2 has %d records, want 3", len(page2.Records))
	}

	banlist, err := m.BanList(1)
	if err != nil {
		t.Fatalf("BanList: %v", err)
	}
	if banlist.Total != 1 || len(banlist.Records) != 1 {
		t.Errorf("banlist = total %d len %d, want the single ban", banlist.Total, len(banlist.Records))
	}
}
