package mpdmodel

import "fmt"

// Refresh applies a newly parsed MPD to the current one in place, per spec
// §3.1's lifecycle rule: "new adaptation sets are disallowed on refresh".
// Representation ids and segment templates may change freely; a change in
// adaptation-set cardinality is ErrCardinalityChanged, which the download
// manager (H) maps to its StreamError lifecycle state (spec §4.2, §7).
func (mpd *MPD) Refresh(next *MPD) error {
	if mpd.Period == nil || next.Period == nil {
		return fmt.Errorf("%w: refresh: missing period", ErrConfig)
	}
	if len(mpd.Period.AdaptationSets) != len(next.Period.AdaptationSets) {
		return fmt.Errorf("%w: had %d adaptation sets, refresh has %d",
			ErrCardinalityChanged, len(mpd.Period.AdaptationSets), len(next.Period.AdaptationSets))
	}
	mpd.Raw = next.Raw
	mpd.Type = next.Type
	mpd.PublishTime = next.PublishTime
	mpd.MinimumUpdatePeriod = next.MinimumUpdatePeriod
	mpd.AvailabilityStartTime = next.AvailabilityStartTime
	mpd.Profiles = next.Profiles
	for i, as := range mpd.Period.AdaptationSets {
		nextAS := next.Period.AdaptationSets[i]
		as.Representations = nextAS.Representations
		as.MimeType = nextAS.MimeType
		as.Codecs = nextAS.Codecs
		as.Coverage = nextAS.Coverage
		as.StereoRole = nextAS.StereoRole
		as.Projection = nextAS.Projection
		as.Preselection = nextAS.Preselection
		as.DependsOnAdaptationSetIDs = nextAS.DependsOnAdaptationSetIDs
		as.Raw = nextAS.Raw
		// Role and ID are identity: they are not expected to change across a
		// refresh of the same logical adaptation set.
	}
	mpd.Period.Duration = next.Period.Duration
	return nil
}
