package mpdmodel

import (
	"strconv"
	"strings"

	m "github.com/Eyevinn/dash-mpd/mpd"
	"github.com/beevik/etree"
)

// classifyRole implements spec §4.2's classification order: OMAF
// Essential/Supplemental descriptors first, then Preselection/dependencyId
// membership, then a codec/mimeType fallback.
func classifyRole(as *AdaptationSet) Role {
	if role, ok := roleFromDescriptors(as.Raw); ok {
		return role
	}
	if as.Preselection != nil {
		return RoleVideoExtractor
	}
	for _, r := range as.Representations {
		if len(r.DependencyID) > 0 {
			return RoleVideoExtractor
		}
	}
	return roleFromCodecAndMime(as)
}

func roleFromDescriptors(as *m.AdaptationSetType) (Role, bool) {
	if as == nil {
		return "", false
	}
	descs := append(append([]*m.DescriptorType{}, as.EssentialProperties...), as.SupplementalProperties...)
	for _, d := range descs {
		if d == nil {
			continue
		}
		switch d.SchemeIdUri {
		case schemeViewpoint:
			return RoleMetadataDynamicViewpoint, true
		case "urn:mpeg:mpegI:omaf:2018:ivo":
			return RoleMetadataInitialViewingOrientation, true
		case "urn:mpeg:mpegI:omaf:2018:ols":
			return RoleMetadataOverlayDynamic, true
		case "urn:mpeg:mpegI:omaf:2018:rvif":
			return RoleMetadataRecommendedViewport, true
		case "urn:mpeg:mpegI:omaf:2018:ovly":
			return RoleVideoOverlay, true
		}
	}
	return "", false
}

// roleFromCodecAndMime implements the final fallback step of spec §4.2:
// hvt1 is a tile track, hvc2 is an extractor track, mp4a/other audio codecs
// are audio, and anything else defaults to the base video role.
func roleFromCodecAndMime(as *AdaptationSet) Role {
	mime := strings.ToLower(as.MimeType)
	codecs := strings.ToLower(as.Codecs)
	if strings.HasPrefix(mime, "audio/") || strings.HasPrefix(codecs, "mp4a") {
		return RoleAudio
	}
	if strings.Contains(codecs, "hvc2") {
		return RoleVideoExtractor
	}
	if strings.Contains(codecs, "hvt1") {
		return RoleVideoTile
	}
	if strings.Contains(mime, "application") {
		return RoleMuxed
	}
	return RoleVideoBase
}

func classifyStereo(as *m.AdaptationSetType) StereoRole {
	for _, d := range as.SupplementalProperties {
		if d == nil || d.SchemeIdUri != schemeStereo {
			continue
		}
		switch d.Value {
		case "0":
			return StereoMono
		case "1":
			return StereoLeft
		case "2":
			return StereoRight
		case "3":
			return StereoFramePacked
		}
	}
	return StereoMono
}

func classifyProjection(as *m.AdaptationSetType) Projection {
	for _, d := range as.EssentialProperties {
		if d == nil || d.SchemeIdUri != schemeProjection {
			continue
		}
		if d.Value == "1" {
			return ProjectionCubemap
		}
	}
	return ProjectionEquirectangular
}

// classifyCoverage parses the OMAF content-coverage descriptor (§6.2's
// urn:mpeg:omaf:cc:2018) carried as SupplementalProperty@value, a
// comma-separated list whose first five fields are read as (shapeType,
// centreAzimuth,centreElevation,azimuthRange,elevationRange); further fields
// are ignored.
func classifyCoverage(as *m.AdaptationSetType) *SphereCoverage {
	for _, d := range as.SupplementalProperties {
		if d == nil || d.SchemeIdUri != schemeContentCoverage {
			continue
		}
		fields := strings.Split(d.Value, ",")
		if len(fields) < 5 {
			continue
		}
		az, err1 := strconv.ParseFloat(fields[1], 64)
		el, err2 := strconv.ParseFloat(fields[2], 64)
		azr, err3 := strconv.ParseFloat(fields[3], 64)
		elr, err4 := strconv.ParseFloat(fields[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		return &SphereCoverage{
			CenterAzimuth:   az / 65536,
			CenterElevation: el / 65536,
			AzimuthRange:    azr / 65536,
			ElevationRange:  elr / 65536,
		}
	}
	return nil
}

// parsePreselections re-reads the raw MPD XML for Preselection elements,
// which dash-mpd does not model: each carries @id (the extractor adaptation
// set's companion preselection id), @preselectionComponents (a
// space-separated list naming the main adaptation set id first, then the
// partial ones), per spec §6.2.
func parsePreselections(doc *etree.Document) []Preselection {
	if doc == nil || doc.Root() == nil {
		return nil
	}
	var out []Preselection
	for _, period := range doc.Root().SelectElements("Period") {
		for _, pe := range period.SelectElements("Preselection") {
			idAttr := pe.SelectAttrValue("id", "")
			components := pe.SelectAttrValue("preselectionComponents", "")
			ids := strings.Fields(components)
			if len(ids) == 0 {
				continue
			}
			out = append(out, Preselection{
				ID:         idAttr,
				MainID:     ids[0],
				PartialIDs: ids[1:],
			})
		}
	}
	return out
}

// bindExtractorBundles computes, for every extractor adaptation set, the
// list of partial adaptation-set ids it depends on, per spec §4.2's
// "extractor bundle binding": Preselection wins when present (tight
// coupling); otherwise the per-representation @dependencyId values are
// resolved from representation ids to their owning adaptation-set ids
// (loose coupling).
func bindExtractorBundles(sets []*AdaptationSet, preselections []Preselection) {
	repToAS := make(map[string]string, len(sets)*2)
	asByID := make(map[string]*AdaptationSet, len(sets))
	for _, as := range sets {
		asByID[as.ID] = as
		for _, r := range as.Representations {
			repToAS[r.ID] = as.ID
		}
	}
	preByMain := make(map[string]Preselection, len(preselections))
	for _, p := range preselections {
		preByMain[p.MainID] = p
	}
	// A Preselection's main set is an extractor unless an OMAF descriptor
	// already gave it a role (step 2 of classifyRole's order).
	for _, as := range sets {
		if _, ok := preByMain[as.ID]; !ok || as.Role == RoleVideoExtractor {
			continue
		}
		if _, byDescriptor := roleFromDescriptors(as.Raw); !byDescriptor {
			as.Role = RoleVideoExtractor
		}
	}
	for _, as := range sets {
		if as.Role != RoleVideoExtractor {
			continue
		}
		if p, ok := preByMain[as.ID]; ok {
			pCopy := p
			as.Preselection = &pCopy
			as.DependsOnAdaptationSetIDs = append([]string{}, p.PartialIDs...)
			continue
		}
		seen := make(map[string]bool)
		for _, r := range as.Representations {
			for _, depRepID := range r.DependencyID {
				if depASID, ok := repToAS[depRepID]; ok && !seen[depASID] {
					seen[depASID] = true
					as.DependsOnAdaptationSetIDs = append(as.DependsOnAdaptationSetIDs, depASID)
				}
			}
		}
	}
	// Tile sets that belong to an extractor bundle are partial: spec §4.2
	// says they are never started/stopped/switched directly. Mark their
	// role as video-tile even if the codec fallback already guessed it, so
	// downstream code has one signal (Role) to check.
	for _, as := range sets {
		if as.Role != RoleVideoExtractor {
			continue
		}
		for _, depID := range as.DependsOnAdaptationSetIDs {
			if dep, ok := asByID[depID]; ok && dep.Role != RoleVideoTile {
				dep.Role = RoleVideoTile
			}
		}
	}
}
