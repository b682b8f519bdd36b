package profile

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meridianbank/signin-gateway/internal/observability/logger"
)

// DirectorFailure records one unresolvable director without aborting the
// batch.
type DirectorFailure struct {
	BPID   string `json:"bpId"`
	Reason string `json:"reason"`
}

// DirectorBatch always separates what resolved from what did not, so the
// caller can render the successes and flag the rest.
type DirectorBatch struct {
	Success []*CustomerProfile `json:"success"`
	Failed  []DirectorFailure  `json:"failed"`
}

// ResolveDirectors fans out over the director-flagged related parties of a
// resolved profile. Each director runs the GUID lookup and profile fetch
// independently; one failure lands in Failed and never cancels the others.
// With zero directors it returns an empty batch without touching the
// network. A nil originating profile is a broken precondition and fails
// before any call is made.
func (r *Resolver) ResolveDirectors(ctx context.Context, origin *CustomerProfile, accessToken string) (DirectorBatch, error) {
	if origin == nil {
		return DirectorBatch{}, ErrMissingProfile
	}

	batch := DirectorBatch{Success: []*CustomerProfile{}, Failed: []DirectorFailure{}}
	directors := origin.Directors()
	if len(directors) == 0 {
		return batch, nil
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("profile.directors"))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, d := range directors {
		d := d
		g.Go(func() error {
			guid, err := r.LookupGUID(ctx, d.BPID, accessToken)
			if err != nil {
				log.Warn("director guid lookup failed", logger.BPID(d.BPID), logger.Err(err))
				mu.Lock()
				batch.Failed = append(batch.Failed, DirectorFailure{BPID: d.BPID, Reason: err.Error()})
				mu.Unlock()
				return nil
			}

			p, err := r.ResolveByGUID(ctx, guid, accessToken)
			if err != nil {
				log.Warn("director profile fetch failed", logger.BPID(d.BPID), logger.Err(err))
				mu.Lock()
				batch.Failed = append(batch.Failed, DirectorFailure{BPID: d.BPID, Reason: err.Error()})
				mu.Unlock()
				return nil
			}

			if p.BPID == "" {
				p.BPID = d.BPID
			}
			mu.Lock()
			batch.Success = append(batch.Success, p)
			mu.Unlock()
			return nil
		})
	}

	// Goroutines swallow their own errors into batch.Failed; Wait only
	// returns a context cancellation.
	if err := g.Wait(); err != nil {
		return batch, err
	}

	log.Info("director fan-out complete",
		logger.Int("resolved", len(batch.Success)),
		logger.Int("failed", len(batch.Failed)),
	)
	return batch, nil
}
