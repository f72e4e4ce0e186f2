// Package mpdmodel builds the in-memory manifest tree (component B) from a
// raw MPD document and updates it on refresh, per spec §3.1 and §4.2. It
// wraps github.com/Eyevinn/dash-mpd/mpd and layers OMAF classification and
// descriptor extraction on top of the parsed tree, re-reading the raw XML
// with github.com/beevik/etree for Preselection elements, which dash-mpd
// does not project. RWPK region lists and viewpoint group descriptions in
// the MPD are not extracted.
package mpdmodel

import (
	"errors"
	"fmt"
	"time"

	m "github.com/Eyevinn/dash-mpd/mpd"
	"github.com/beevik/etree"
)

// Role classifies an AdaptationSet per spec §3.1.
type Role string

const (
	RoleVideoBase                        Role = "video-base"
	RoleVideoTile                        Role = "video-tile"
	RoleVideoExtractor                   Role = "video-extractor"
	RoleVideoOverlay                     Role = "video-overlay"
	RoleAudio                            Role = "audio"
	RoleMetadataInitialViewingOrientation Role = "metadata-initial-viewing-orientation"
	RoleMetadataDynamicViewpoint         Role = "metadata-dynamic-viewpoint"
	RoleMetadataOverlayDynamic           Role = "metadata-overlay-dynamic"
	RoleMetadataRecommendedViewport      Role = "metadata-recommended-viewport"
	RoleMuxed                            Role = "muxed"
)

// StereoRole mirrors spec §3.1's stereoRole enum.
type StereoRole string

const (
	StereoMono        StereoRole = "mono"
	StereoLeft        StereoRole = "left"
	StereoRight       StereoRole = "right"
	StereoFramePacked StereoRole = "frame-packed"
)

// Projection mirrors spec §3.1's projection enum.
type Projection string

const (
	ProjectionEquirectangular Projection = "equirectangular"
	ProjectionCubemap         Projection = "cubemap"
)

// Supported DASH/OMAF profile URNs, per spec §3.1 and §6.2.
var supportedProfiles = []string{
	"urn:mpeg:dash:profile:isoff-live:2011",
	"urn:mpeg:dash:profile:isoff-on-demand:2011",
	"urn:mpeg:dash:profile:isoff-main:2011",
	"urn:mpeg:dash:profile:isoff-full:2011",
}

// OMAF scheme URNs used for classification, per spec §6.2.
const (
	schemeContentCoverage = "urn:mpeg:omaf:cc:2018"
	schemeViewpoint       = "urn:mpeg:mpegI:omaf:2018:vrtt"
	schemeRWPK            = "urn:mpeg:mpegI:omaf:2018:rwpk"
	schemeProjection      = "urn:mpeg:mpegI:omaf:2018:pf"
	schemeStereo          = "urn:mpeg:mpegI:omaf:2018:stvi"
)

// Errors surfaced by the MPD model, per spec §7's ConfigError/SchedulingError
// kinds.
var (
	// ErrConfig covers a malformed MPD or a missing required descriptor.
	ErrConfig = errors.New("mpdmodel: config error")
	// ErrCardinalityChanged is SchedulingError's manifestation at refresh
	// time: spec §4.2 makes a change in adaptation-set count fatal.
	ErrCardinalityChanged = errors.New("mpdmodel: adaptation set cardinality changed across refresh")
	// ErrNoPeriod is returned when an MPD carries zero periods.
	ErrNoPeriod = errors.New("mpdmodel: MPD has no periods")
)

// MPD is the root of the parsed manifest, spec §3.1.
type MPD struct {
	Raw                    *m.MPD
	Type                   string // "static" or "dynamic"
	PublishTime            time.Time
	MinimumUpdatePeriod    time.Duration
	AvailabilityStartTime  time.Time
	Profiles               []string
	Period                 *Period // only the first period is honored, spec §9
}

// HasSupportedProfile implements the §3.1 invariant: at least one supported
// profile must be present, or the core warns (via the returned bool) and
// proceeds rather than failing.
func (mpd *MPD) HasSupportedProfile() bool {
	for _, p := range mpd.Profiles {
		for _, sp := range supportedProfiles {
			if p == sp {
				return true
			}
		}
	}
	return false
}

// Period owns an ordered set of AdaptationSets, spec §3.1.
type Period struct {
	ID             string
	Duration       time.Duration
	AdaptationSets []*AdaptationSet
}

// Preselection names a main adaptation set plus the partial adaptation sets
// it depends on, spec glossary. Ids reference AdaptationSet.ID values.
type Preselection struct {
	ID         string
	MainID     string
	PartialIDs []string
}

// SphereCoverage is the optional spherical viewport rectangle an
// AdaptationSet declares via the OMAF content-coverage descriptor.
type SphereCoverage struct {
	CenterAzimuth   float64
	CenterElevation float64
	AzimuthRange    float64
	ElevationRange  float64
}

// AdaptationSet carries the OMAF classification metadata of spec §3.1.
type AdaptationSet struct {
	ID              string
	Role            Role
	MimeType        string
	Codecs          string
	Preselection    *Preselection
	StereoRole      StereoRole
	Projection      Projection
	Coverage        *SphereCoverage
	Representations []*Representation

	// DependsOnAdaptationSetIDs is the extractor bundle binding of spec §4.2:
	// for an extractor set, the ids of the partial tile sets it requires,
	// whether learned from Preselection or from per-representation
	// @dependencyId.
	DependsOnAdaptationSetIDs []string

	Raw *m.AdaptationSetType
}

// Representation is a single quality/bitrate variant within an
// AdaptationSet, spec §3.1.
type Representation struct {
	ID             string
	Bandwidth      uint32
	Width          int
	Height         int
	FrameRate      float64
	Codecs         string
	QualityRanking int
	DependencyID   []string // §3.1's @dependencyId, split on whitespace/comma

	SegmentTemplate *SegmentTemplate

	Raw *m.RepresentationType
}

// PixelsPerSecond is width*height*frameRate, the quantity spec §3.1's device
// budget invariant sums across active representations.
func (r *Representation) PixelsPerSecond() float64 {
	return float64(r.Width) * float64(r.Height) * r.FrameRate
}

// SegmentTimelineEntry is one S element of a SegmentTimeline.
type SegmentTimelineEntry struct {
	StartTime uint64
	Duration  uint64
	Repeat    int
}

// SegmentTemplate is the URL factory of spec §3.2, derived from the MPD's
// SegmentTemplate element (on the AdaptationSet or overridden per
// Representation).
type SegmentTemplate struct {
	Timescale      uint32
	Initialization string
	Media          string
	StartNumber    uint32
	DurationTicks  uint32
	Timeline       []SegmentTimelineEntry
}

// replacer substitutes the $RepresentationID$/$Bandwidth$/$Number$/$Time$
// identifiers DASH segment templates use, grounded on livesim2's
// replaceIdentifiers (cmd/livesim2/app/asset.go) and dashfetcher's
// replaceTime/replaceNumber helpers.
func replace(pattern string, repID string, bandwidth uint32, number uint64, hasNumber bool, timeVal uint64, hasTime bool) string {
	out := []byte(pattern)
	out = replaceToken(out, "$RepresentationID$", repID)
	out = replaceToken(out, "$Bandwidth$", fmt.Sprintf("%d", bandwidth))
	if hasNumber {
		out = replaceToken(out, "$Number$", fmt.Sprintf("%d", number))
	}
	if hasTime {
		out = replaceToken(out, "$Time$", fmt.Sprintf("%d", timeVal))
	}
	return string(out)
}

func replaceToken(in []byte, token, value string) []byte {
	s := string(in)
	for {
		idx := indexOf(s, token)
		if idx < 0 {
			break
		}
		s = s[:idx] + value + s[idx+len(token):]
	}
	return []byte(s)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// InitURL returns the init segment URL for repID/bandwidth.
func (st *SegmentTemplate) InitURL(repID string, bandwidth uint32) string {
	return replace(st.Initialization, repID, bandwidth, 0, false, 0, false)
}

// MediaURLByNumber returns the media segment URL addressed by segment number.
func (st *SegmentTemplate) MediaURLByNumber(repID string, bandwidth uint32, number uint64) string {
	return replace(st.Media, repID, bandwidth, number, true, 0, false)
}

// MediaURLByTime returns the media segment URL addressed by presentation
// time, used when the SegmentTimeline uses $Time$ rather than $Number$.
func (st *SegmentTemplate) MediaURLByTime(repID string, bandwidth uint32, t uint64) string {
	return replace(st.Media, repID, bandwidth, 0, false, t, true)
}

// UsesTimeline reports whether segment addressing is driven by an explicit
// SegmentTimeline rather than a fixed duration.
func (st *SegmentTemplate) UsesTimeline() bool {
	return len(st.Timeline) > 0
}

// Parse builds an MPD from raw XML bytes, classifying every AdaptationSet
// and resolving extractor bundle bindings (spec §4.2).
func Parse(data []byte) (*MPD, error) {
	raw, err := m.ReadFromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse MPD: %v", ErrConfig, err)
	}
	if len(raw.Periods) == 0 {
		return nil, ErrNoPeriod
	}
	doc := etree.NewDocument()
	_ = doc.ReadFromBytes(data) // best-effort; OMAF-extra extraction degrades gracefully if this fails

	mpdType := "static"
	if raw.Type != nil {
		mpdType = *raw.Type
	}
	var availStart, publish time.Time
	if raw.AvailabilityStartTime != nil {
		availStart = convertDateTime(*raw.AvailabilityStartTime)
	}
	if raw.PublishTime != nil {
		publish = convertDateTime(*raw.PublishTime)
	}
	var minUpdate time.Duration
	if raw.MinimumUpdatePeriod != nil {
		minUpdate = time.Duration(*raw.MinimumUpdatePeriod)
	}

	firstPeriod, err := buildPeriod(raw.Periods[0], doc)
	if err != nil {
		return nil, err
	}

	return &MPD{
		Raw:                   raw,
		Type:                  mpdType,
		PublishTime:           publish,
		MinimumUpdatePeriod:   minUpdate,
		AvailabilityStartTime: availStart,
		Profiles:              splitProfiles(string(raw.Profiles)),
		Period:                firstPeriod,
	}, nil
}

func convertDateTime(dt m.DateTime) time.Time {
	secs, err := dt.ConvertToSeconds()
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, 0).UTC().Add(secs)
}

func splitProfiles(profiles string) []string {
	var out []string
	cur := ""
	for _, r := range profiles {
		if r == ',' {
			if cur != "" {
				out = append(out, cur)
			}
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func buildPeriod(p *m.PeriodType, doc *etree.Document) (*Period, error) {
	var durMS uint64
	if p.Duration != nil {
		durMS = uint64(time.Duration(*p.Duration).Milliseconds())
	}
	period := &Period{
		ID:       p.Id,
		Duration: time.Duration(durMS) * time.Millisecond,
	}
	preselections := parsePreselections(doc)
	for _, as := range p.AdaptationSets {
		built, err := buildAdaptationSet(as)
		if err != nil {
			return nil, err
		}
		period.AdaptationSets = append(period.AdaptationSets, built)
	}
	bindExtractorBundles(period.AdaptationSets, preselections)
	return period, nil
}

func buildAdaptationSet(as *m.AdaptationSetType) (*AdaptationSet, error) {
	id := ""
	if as.Id != nil {
		id = fmt.Sprintf("%d", *as.Id)
	}
	built := &AdaptationSet{
		ID:       id,
		MimeType: as.MimeType,
		Codecs:   as.Codecs,
		Raw:      as,
	}
	for _, rep := range as.Representations {
		r, err := buildRepresentation(as, rep)
		if err != nil {
			return nil, err
		}
		built.Representations = append(built.Representations, r)
	}
	built.StereoRole = classifyStereo(as)
	built.Projection = classifyProjection(as)
	built.Coverage = classifyCoverage(as)
	built.Role = classifyRole(built)
	return built, nil
}

func buildRepresentation(as *m.AdaptationSetType, rep *m.RepresentationType) (*Representation, error) {
	st := as.SegmentTemplate
	if rep.SegmentTemplate != nil {
		st = rep.SegmentTemplate
	}
	built := &Representation{
		ID:             rep.Id,
		Bandwidth:      rep.Bandwidth,
		Width:          rep.Width,
		Height:         rep.Height,
		FrameRate:      parseFrameRate(rep.FrameRate),
		Codecs:         firstNonEmpty(rep.Codecs, as.Codecs),
		QualityRanking: rep.QualityRanking,
		DependencyID:   splitDependencyID(rep.DependencyId),
		Raw:            rep,
	}
	if st != nil {
		built.SegmentTemplate = buildSegmentTemplate(st)
	}
	return built, nil
}

func buildSegmentTemplate(st *m.SegmentTemplateType) *SegmentTemplate {
	out := &SegmentTemplate{
		Initialization: st.Initialization,
		Media:          st.Media,
		Timescale:      1,
	}
	if st.Timescale != nil {
		out.Timescale = *st.Timescale
	}
	if st.StartNumber != nil {
		out.StartNumber = *st.StartNumber
	}
	if st.Duration != nil {
		out.DurationTicks = *st.Duration
	}
	if st.SegmentTimeline != nil {
		var t uint64
		for _, s := range st.SegmentTimeline.S {
			if s.T != nil {
				t = *s.T
			}
			out.Timeline = append(out.Timeline, SegmentTimelineEntry{StartTime: t, Duration: s.D, Repeat: s.R})
			t += s.D
			for i := 0; i < s.R; i++ {
				t += s.D
			}
		}
	}
	return out
}

func parseFrameRate(fr string) float64 {
	if fr == "" {
		return 0
	}
	num, den := 0.0, 1.0
	sign := 1.0
	i := 0
	for ; i < len(fr) && fr[i] != '/'; i++ {
		if fr[i] == '-' {
			sign = -1
			continue
		}
		if fr[i] < '0' || fr[i] > '9' {
			return 0
		}
		num = num*10 + float64(fr[i]-'0')
	}
	if i < len(fr) && fr[i] == '/' {
		den = 0
		for j := i + 1; j < len(fr); j++ {
			if fr[j] < '0' || fr[j] > '9' {
				return 0
			}
			den = den*10 + float64(fr[j]-'0')
		}
		if den == 0 {
			den = 1
		}
	}
	return sign * num / den
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitDependencyID(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	cur := ""
	for _, r := range raw {
		if r == ',' || r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
