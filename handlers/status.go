package handlers

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"banward/database"
)

// Status is a point-in-time health snapshot of the store and its host.
type Status struct {
	StoreHealthy bool
	Backend      string

	OS         string
	Platform   string
	UptimeSecs uint64

	CPUPercent  float64
	MemUsedMB   uint64
	MemTotalMB  uint64
	MemUsedPerc float64

	TotalPunishments int
}

// StatusReporter assembles status snapshots for operator commands.
type StatusReporter struct {
	store   *database.Manager
	backend database.Backend
	log     *zap.SugaredLogger
}

func NewStatusReporter(store *database.Manager, backend database.Backend, log *zap.SugaredLogger) *StatusReporter {
	return &StatusReporter{store: store, backend: backend, log: log}
}

// Snapshot gathers the report. System probes are best effort; a probe
// failure leaves its fields zero and is logged at debug.
func (s *StatusReporter) Snapshot(ctx context.Context) Status {
	st := Status{
		StoreHealthy: s.store.Healthy(ctx),
		Backend:      s.backend.Dialect(),
	}

	if info, err := host.Info(); err == nil {
		st.OS = info.OS
		st.Platform = info.Platform
		st.UptimeSecs = info.Uptime
	} else {
		s.log.Debugw("host probe failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		st.MemUsedMB = vm.Used / 1024 / 1024
		st.MemTotalMB = vm.Total / 1024 / 1024
		st.MemUsedPerc = vm.UsedPercent
	} else {
		s.log.Debugw("memory probe failed", "error", err)
	}

	if percents, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(percents) > 0 {
		st.CPUPercent = percents[0]
	} else if err != nil {
		s.log.Debugw("cpu probe failed", "error", err)
	}

	if total, err := s.store.TotalPunishmentsCount().Get(ctx); err == nil {
		st.TotalPunishments = total
	} else {
		s.log.Debugw("punishment count failed", "error", err)
	}

	return st
}
