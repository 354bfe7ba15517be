package analysis

import "fmt"

// SiteFilter selects a view over analysed sites
type SiteFilter string

const (
	FilterAll         SiteFilter = "all"
	FilterCritical    SiteFilter = "critical"
	FilterNeedsVisits SiteFilter = "needs-visits"
)

// ParseSiteFilter validates a filter name; empty means all
func ParseSiteFilter(name string) (SiteFilter, error) {
	switch SiteFilter(name) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterCritical, FilterNeedsVisits:
		return SiteFilter(name), nil
	}
	return "", fmt.Errorf("unknown site filter %q", name)
}

// NeedsVisit reports whether a site should be scheduled for an on-site visit
func NeedsVisit(site SiteRecord) bool {
	return site.Priority == PriorityHigh || site.Critical >= HighPriorityCritical
}

// FilterSites returns the sites matching filter, preserving ranking order
func FilterSites(result Result, filter SiteFilter) []SiteRecord {
	if filter == FilterAll || filter == "" {
		return result.Sites
	}

	out := make([]SiteRecord, 0, len(result.Sites))
	for _, site := range result.Sites {
		switch filter {
		case FilterCritical:
			if site.Critical > 0 {
				out = append(out, site)
			}
		case FilterNeedsVisits:
			if NeedsVisit(site) {
				out = append(out, site)
			}
		}
	}
	return out
}

// SitesNeedingVisits counts sites that need an on-site visit
func SitesNeedingVisits(result Result) int {
	return len(FilterSites(result, FilterNeedsVisits))
}

// FindSite looks up a site by id
func FindSite(result Result, siteID int) (SiteRecord, bool) {
	for _, site := range result.Sites {
		if site.SiteID == siteID {
			return site, true
		}
	}
	return SiteRecord{}, false
}

// DevicesByTier returns the devices of a site in the given tier
func DevicesByTier(site SiteRecord, tier Tier) []DeviceRecord {
	out := []DeviceRecord{}
	for _, d := range site.Devices {
		if d.Tier == tier {
			out = append(out, d)
		}
	}
	return out
}
