package protocols

import (
	"time"

	"github.com/BogBogdan/ot-node/internal/commands/runtime"
	"github.com/BogBogdan/ot-node/internal/data/repos"
	"github.com/BogBogdan/ot-node/internal/pendingstorage"
	"github.com/BogBogdan/ot-node/internal/pkg/logger"
)

// paranetSync runs one sync pass for every configured paranet. A failing paranet is
// logged and does not hold back the others.
type paranetSync struct {
	log          *logger.Logger
	paranets     ParanetSyncer
	syncParanets []string
	period       time.Duration
}

func (h *paranetSync) Name() string { return ParanetSyncCommand }

func (h *paranetSync) Default() runtime.Policy { return runtime.Policy{Period: h.period} }

func (h *paranetSync) Execute(rc *runtime.Context) runtime.Outcome {
	for _, p := range h.syncParanets {
		if err := rc.Ctx.Err(); err != nil {
			return runtime.Retry(err)
		}
		res, err := h.paranets.SyncParanet(rc.Ctx, p)
		if err != nil {
			rc.Log.Warn("Paranet sync failed", "paranet_ual", p, "error", err)
			continue
		}
		if res.Attempted > 0 {
			rc.Log.Info("Paranet sync pass done",
				"paranet_ual", p,
				"discovered", res.Discovered,
				"synced", res.Synced,
				"failed", res.Failed,
			)
		}
	}
	return runtime.Continue()
}

// commandsCleaner removes finished command rows past their retention.
type commandsCleaner struct {
	log       *logger.Logger
	repo      repos.CommandRepo
	retention time.Duration
	batch     int
	period    time.Duration
}

func (h *commandsCleaner) Name() string { return CommandsCleanerCommand }

func (h *commandsCleaner) Default() runtime.Policy { return runtime.Policy{Period: h.period} }

func (h *commandsCleaner) Execute(rc *runtime.Context) runtime.Outcome {
	cutoff := time.Now().UTC().Add(-h.retention)
	var total int64
	for {
		n, err := h.repo.RemoveFinalized(rc.DB, cutoff, h.batch)
		if err != nil {
			return runtime.Retry(err)
		}
		total += n
		if n < int64(h.batch) {
			break
		}
	}
	if total > 0 {
		rc.Log.Info("Removed finished commands", "count", total)
	}
	return runtime.Continue()
}

// operationIDCleaner removes expired operation records with their cached results, and
// pending publish data nobody finalized.
type operationIDCleaner struct {
	log              *logger.Logger
	tracker          Tracker
	pending          *pendingstorage.Storage
	retention        time.Duration
	pendingRetention time.Duration
	batch            int
	period           time.Duration
}

func (h *operationIDCleaner) Name() string { return OperationIDCleanerCommand }

func (h *operationIDCleaner) Default() runtime.Policy { return runtime.Policy{Period: h.period} }

func (h *operationIDCleaner) Execute(rc *runtime.Context) runtime.Outcome {
	now := time.Now().UTC()
	total := 0
	for {
		n, err := h.tracker.RemoveExpired(rc.DB, now.Add(-h.retention), h.batch)
		if err != nil {
			return runtime.Retry(err)
		}
		total += n
		if n < h.batch {
			break
		}
	}
	expired, err := h.pending.ExpireOlderThan(now.Add(-h.pendingRetention))
	if err != nil {
		rc.Log.Warn("Failed to expire pending publish data", "error", err)
	}
	if total > 0 || expired > 0 {
		rc.Log.Info("Removed expired operations", "operations", total, "pending_files", expired)
	}
	return runtime.Continue()
}
