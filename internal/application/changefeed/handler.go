// Package changefeed turns company-change events into snapshot version bumps.
// API replicas compare the shared version on every snapshot read, so one bump
// here invalidates every replica.
package changefeed

import (
	"context"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/prometheus"
)

// Invalidator drops a locally cached snapshot.
type Invalidator interface {
	Invalidate()
}

// Handler consumes company.changed events.
type Handler struct {
	versions geoentity.VersionStore
	local    Invalidator
	metrics  *prom.AppMetrics
	logger   logging.Logger
}

// NewHandler bumps versions and, when local is non-nil, invalidates it too.
func NewHandler(versions geoentity.VersionStore, local Invalidator, metrics *prom.AppMetrics, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{versions: versions, local: local, metrics: metrics, logger: logger.Named("changefeed")}
}

// Handle is a kafka.MessageHandler.  Malformed or foreign events are logged
// and skipped; only a failed bump is returned for retry.
func (h *Handler) Handle(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		h.logger.Warn("Skipping undecodable change event", logging.Int64("offset", msg.Offset), logging.Err(err))
		return nil
	}
	if env.EventType != kafka.EventCompanyChanged {
		h.logger.Debug("Ignoring event", logging.String("event_type", env.EventType))
		return nil
	}
	var payload kafka.CompanyChangedPayload
	if err := env.DecodePayload(&payload); err != nil {
		h.logger.Warn("Skipping change event with bad payload", logging.String("event_id", env.EventID), logging.Err(err))
		return nil
	}

	version, err := h.versions.Bump(ctx)
	if err != nil {
		return err
	}
	if h.local != nil {
		h.local.Invalidate()
	}
	h.metrics.SetSnapshotVersion(version)
	h.logger.Info("Company snapshot version bumped",
		logging.Uint64("version", version),
		logging.String("operation", payload.Operation),
		logging.Int("companies", len(payload.CompanyIDs)),
	)
	return nil
}

//Personal.AI order the ending
