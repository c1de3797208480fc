// Package enhancer enriches recognized tracks with streaming links and
// artwork from public catalogue APIs.
package enhancer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/recognition"
)

// Config selects the enrichment endpoints
type Config struct {
	OdesliEndpoint string
	DeezerEndpoint string
	UserCountry    string
	Timeout        time.Duration
}

// Enhancer fills in what the recognition service left out. Lookups are best
// effort: failures are logged and the track is returned as it was.
type Enhancer struct {
	odesli *Odesli
	deezer *Deezer
	logger *zap.Logger
}

// New creates an Enhancer
func New(cfg Config, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{
		odesli: NewOdesli(cfg.OdesliEndpoint, cfg.UserCountry, cfg.Timeout),
		deezer: NewDeezer(cfg.DeezerEndpoint, cfg.Timeout),
		logger: logger,
	}
}

// Enhance returns the track with missing links and artwork filled in
func (e *Enhancer) Enhance(ctx context.Context, track recognition.Track) recognition.Track {
	log := e.logger.With(zap.Stringer("track", track))

	if src := sourceLink(track.Links); src != "" {
		links, err := e.odesli.Links(ctx, src)
		if err != nil {
			log.Warn("link lookup failed", zap.Error(err))
		} else {
			merge(&track.Links, links)
		}
	}

	if track.Artwork.ThumbURL == "" && track.Links.Deezer != "" {
		if _, ok := TrackID(track.Links.Deezer); ok {
			art, err := e.deezer.Artwork(ctx, track.Links.Deezer)
			switch {
			case err != nil:
				log.Warn("artwork lookup failed", zap.Error(err))
			case art.URL != "" && (track.Artwork.URL == "" || art.ThumbURL != ""):
				track.Artwork = art
			}
		}
	}

	return track
}
