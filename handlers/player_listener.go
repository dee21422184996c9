package handlers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"banward/async"
	"banward/database"
	"banward/model"
	"banward/utils"
)

// LoginDecision is the outcome of a login check.
type LoginDecision struct {
	Allowed bool
	// Denial is the punishment that blocked the login, nil when the
	// login was denied for operational reasons (store timeout or error).
	Denial *model.PunishmentRecord
	// Message is a human-readable denial reason, empty when allowed.
	Message string
}

// PlayerListener reacts to host events. Login checks fail closed: if the
// store cannot answer in time the player is turned away rather than let
// through on a stale view. Chat checks fail open: a lost message is
// cheaper than silencing everyone during a store hiccup.
type PlayerListener struct {
	store *database.Manager
	cache *utils.PlayerCache
	log   *zap.SugaredLogger

	loginWait time.Duration
	chatWait  time.Duration
}

// NewPlayerListener wires the listener. Non-positive waits fall back to
// one second.
func NewPlayerListener(store *database.Manager, cache *utils.PlayerCache, log *zap.SugaredLogger, loginWait, chatWait time.Duration) *PlayerListener {
	if loginWait <= 0 {
		loginWait = time.Second
	}
	if chatWait <= 0 {
		chatWait = time.Second
	}
	return &PlayerListener{store: store, cache: cache, log: log, loginWait: loginWait, chatWait: chatWait}
}

// HandleLogin decides whether a connecting player may join, checking the
// ban family on their identity and then on their address. On an allowed
// login it records the address, propagates a rename across history and
// warms the identity cache.
func (l *PlayerListener) HandleLogin(name string, id uuid.UUID, addr string) LoginDecision {
	ip := utils.NormalizeIP(addr)

	ban, err := l.store.ActivePunishment(id, model.TypeBan).GetTimeout(l.loginWait)
	if err != nil {
		l.log.Errorw("login ban check failed, denying", "player", name, "error", err)
		return LoginDecision{Message: "punishment check unavailable, try again shortly"}
	}
	if ban != nil {
		return deny(ban)
	}

	ipBan, err := l.store.ActiveIPPunishment(ip, model.TypeIPBan).GetTimeout(l.loginWait)
	if err != nil {
		l.log.Errorw("login ip ban check failed, denying", "player", name, "ip", ip, "error", err)
		return LoginDecision{Message: "punishment check unavailable, try again shortly"}
	}
	if ipBan != nil {
		return deny(ipBan)
	}

	l.onAllowedLogin(name, id, ip)
	return LoginDecision{Allowed: true}
}

// onAllowedLogin does the post-check bookkeeping. All writes are
// asynchronous; a failure is logged and never blocks the join.
func (l *PlayerListener) onAllowedLogin(name string, id uuid.UUID, ip string) {
	l.watch("save player ip", l.store.SavePlayerIP(id, ip))

	if stored, ok := l.cache.NameOf(id); ok && stored != name {
		l.log.Infow("player renamed, rewriting history", "uuid", id, "old", stored, "new", name)
		l.watch("rewrite player name", l.store.UpdatePlayerName(id, name))
	}
	l.cache.Put(name, id)
}

// HandleChat returns the active mute covering the speaker, or nil when
// they may talk. Timeouts and errors answer nil.
func (l *PlayerListener) HandleChat(id uuid.UUID) *model.PunishmentRecord {
	mute, err := l.store.ActivePunishment(id, model.TypeMute).GetTimeout(l.chatWait)
	if err != nil {
		l.log.Warnw("chat mute check failed, allowing", "uuid", id, "error", err)
		return nil
	}
	return mute
}

func (l *PlayerListener) watch(what string, res *async.Result[struct{}]) {
	go func() {
		if _, err := res.GetTimeout(10 * time.Second); err != nil {
			l.log.Warnw("background write failed", "op", what, "error", err)
		}
	}()
}

func deny(rec *model.PunishmentRecord) LoginDecision {
	msg := fmt.Sprintf("You are banned: %s", rec.Reason)
	if !rec.IsPermanent() {
		remaining := time.Duration(rec.ExpiresAt-time.Now().UnixMilli()) * time.Millisecond
		msg = fmt.Sprintf("You are banned for %s: %s", utils.FormatDuration(remaining), rec.Reason)
	}
	return LoginDecision{Denial: rec, Message: msg}
}
