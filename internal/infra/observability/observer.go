package observability

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/biosight/internal/application"
	"github.com/bryanwahyu/biosight/internal/middleware"
)

// Observer logs best-effort failures and counts them in Prometheus.
type Observer struct {
	Log logrus.FieldLogger
}

func (o *Observer) BestEffort(ctx context.Context, out application.Outcome) {
	middleware.RecordBestEffortFailure(out.Op)
	o.Log.WithFields(logrus.Fields{
		"op":         out.Op,
		"session":    out.SessionHash,
		"request_id": chimw.GetReqID(ctx),
	}).WithError(out.Err).Warn("best-effort step failed")
}

var _ application.Observer = (*Observer)(nil)
