package siblings

import (
	"github.com/nself/content-acquisition/internal/config"
	"github.com/nself/content-acquisition/internal/resilience"
)

// Clients groups the six sibling service clients the orchestrator drives
// through a pipeline run (§4.1).
type Clients struct {
	VPN      *VPNClient
	Torrent  *TorrentClient
	Metadata *MetadataClient
	Subtitle *SubtitleClient
	Media    *MediaClient
	Publish  *PublishClient
}

// New builds every sibling client from resolved configuration. trip may be
// nil, in which case each client's circuit breaker is process-local only.
func New(cfg *config.Resolved, trip *resilience.SharedTrip) *Clients {
	var opts []Option
	if trip != nil {
		opts = append(opts, WithSharedTrip(trip))
	}
	return &Clients{
		VPN:      NewVPNClient(cfg.Siblings.VPNURL, cfg.HTTPTimeout, opts...),
		Torrent:  NewTorrentClient(cfg.Siblings.TorrentURL, cfg.HTTPTimeout, opts...),
		Metadata: NewMetadataClient(cfg.Siblings.MetadataURL, cfg.HTTPTimeout, opts...),
		Subtitle: NewSubtitleClient(cfg.Siblings.SubtitleURL, cfg.HTTPTimeout, opts...),
		Media:    NewMediaClient(cfg.Siblings.MediaURL, cfg.HTTPTimeout, opts...),
		Publish:  NewPublishClient(cfg.Siblings.PublishURL, cfg.HTTPTimeout, opts...),
	}
}
