// Package services содержит фоновую синхронизацию карт с каталогом
// шаблонов: периодический проход перечитывает каталог при изменении
// и применяет обновления шаблонов ко всем активным шаблонным картам.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/services/templatesync"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardperks_template_sweeps_total",
		Help: "Number of template sync sweeps executed.",
	})
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardperks_template_sweep_errors_total",
		Help: "Number of template sync sweeps that failed.",
	})
	cardsSyncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardperks_cards_synced_total",
		Help: "Number of cards updated by template sync.",
	})
	lastSweepTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardperks_template_sweep_last_timestamp_seconds",
		Help: "Unix timestamp of the last completed sweep.",
	})
)

// Reloader перечитывает каталог шаблонов при изменении на диске.
type Reloader interface {
	ReloadIfChanged() (bool, error)
}

// Syncer применяет шаблонную синхронизацию ко всем картам.
type Syncer interface {
	SyncAll(ctx context.Context) (*templatesync.Summary, error)
}

// SweeperService периодически сверяет карты с каталогом шаблонов.
type SweeperService struct {
	reloader Reloader
	syncer   Syncer
	log      *slog.Logger
}

// NewSweeperService создает новый экземпляр SweeperService.
func NewSweeperService(reloader Reloader, syncer Syncer, log *slog.Logger) *SweeperService {
	return &SweeperService{
		reloader: reloader,
		syncer:   syncer,
		log:      log,
	}
}

// Run выполняет проход сразу и далее с заданным интервалом,
// пока контекст не будет отменён.
func (s *SweeperService) Run(ctx context.Context, interval time.Duration) {
	s.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("template sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет один проход: перечитывает каталог при изменении
// и синхронизирует все активные шаблонные карты.
func (s *SweeperService) Sweep(ctx context.Context) {
	sweepsTotal.Inc()

	reloaded, err := s.reloader.ReloadIfChanged()
	if err != nil {
		s.log.Error("failed to reload template catalog", sl.Err(err))
		sweepErrorsTotal.Inc()
		return
	}
	if reloaded {
		s.log.Info("template catalog reloaded")
	}

	summary, err := s.syncer.SyncAll(ctx)
	if err != nil {
		s.log.Error("template sync sweep failed", sl.Err(err))
		sweepErrorsTotal.Inc()
		return
	}

	cardsSyncedTotal.Add(float64(summary.CardsSynced + summary.CardsInitialized))
	lastSweepTimestamp.SetToCurrentTime()

	if summary.CardsSynced > 0 || summary.CardsInitialized > 0 || len(summary.Errors) > 0 {
		s.log.Info("template sweep finished",
			slog.Int("synced", summary.CardsSynced),
			slog.Int("initialized", summary.CardsInitialized),
			slog.Int("errors", len(summary.Errors)))
	}
}
