package catalog

import (
	"context"

	"github.com/samutus/warframe-market-collector/internal/market"
	"github.com/samutus/warframe-market-collector/pkg/logger"
)

// MarketSource is the slice of the market client the refresher needs.
type MarketSource interface {
	FetchSetComponents(ctx context.Context, setURL string) ([]market.SetPart, error)
}

// Refresher rebuilds component rows from the upstream item API.
type Refresher struct {
	source MarketSource
	logger *logger.Logger
}

// NewRefresher creates a new Refresher instance.
func NewRefresher(source MarketSource, log *logger.Logger) *Refresher {
	return &Refresher{
		source: source,
		logger: log.WithField("module", "catalog"),
	}
}

// RefreshResult tallies one refresh pass.
type RefreshResult struct {
	Sets       int // sets fetched successfully
	Components int // component rows produced
	Failed     int // sets skipped after a fetch error
}

// Refresh fetches the component list for every given set URL. A fetch
// failure skips that set and is counted, it never aborts the pass.
func (r *Refresher) Refresh(ctx context.Context, setURLs []string) ([]Component, RefreshResult, error) {
	components := make([]Component, 0, len(setURLs)*4)
	result := RefreshResult{}

	for _, setURL := range setURLs {
		select {
		case <-ctx.Done():
			return components, result, ctx.Err()
		default:
		}

		parts, err := r.source.FetchSetComponents(ctx, setURL)
		if err != nil {
			r.logger.WithError(err).WithField("set_url", setURL).Warn("Failed to fetch set components")
			result.Failed++
			continue
		}

		for _, part := range parts {
			components = append(components, Component{
				SetURL:   part.SetURL,
				PartURL:  part.PartURL,
				Quantity: part.Quantity,
			})
		}

		result.Sets++
		result.Components += len(parts)

		r.logger.WithFields(map[string]interface{}{
			"set_url": setURL,
			"parts":   len(parts),
		}).Debug("Fetched set components")
	}

	r.logger.WithFields(map[string]interface{}{
		"sets":       result.Sets,
		"components": result.Components,
		"failed":     result.Failed,
	}).Info("Catalog refresh completed")

	return components, result, nil
}
