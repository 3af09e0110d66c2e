package replication

import (
	"fmt"
	"strings"
	"time"
)

// Source is a replication endpoint: a base URL serving state.txt plus
// sequence-numbered .osc.gz diffs, per the OSM replication directory
// layout SequenceToPath/PathToSequence encode.
type Source struct {
	Name           string
	BaseURL        string
	UpdateInterval time.Duration
	Description    string
}

func (s *Source) StateURL() string {
	return s.BaseURL + "/state.txt"
}

func (s *Source) SequenceStateURL(seq int64) string {
	return fmt.Sprintf("%s/%s.state.txt", s.BaseURL, SequenceToPath(seq))
}

func (s *Source) SequenceDataURL(seq int64) string {
	return fmt.Sprintf("%s/%s.osc.gz", s.BaseURL, SequenceToPath(seq))
}

// planetSources are the standard planet.openstreetmap.org replication feeds.
var planetSources = map[string]*Source{
	"planet-minute": {
		Name:           "planet-minute",
		BaseURL:        "https://planet.openstreetmap.org/replication/minute",
		UpdateInterval: time.Minute,
		Description:    "OpenStreetMap planet minutely updates",
	},
	"planet-hour": {
		Name:           "planet-hour",
		BaseURL:        "https://planet.openstreetmap.org/replication/hour",
		UpdateInterval: time.Hour,
		Description:    "OpenStreetMap planet hourly updates",
	},
	"planet-day": {
		Name:           "planet-day",
		BaseURL:        "https://planet.openstreetmap.org/replication/day",
		UpdateInterval: 24 * time.Hour,
		Description:    "OpenStreetMap planet daily updates",
	},
}

// planetAliases maps the short forms accepted on the command line to a key
// in planetSources.
var planetAliases = map[string]string{
	"planet-minute": "planet-minute", "planet/minute": "planet-minute", "minute": "planet-minute",
	"planet-hour": "planet-hour", "planet/hour": "planet-hour", "hour": "planet-hour",
	"planet-day": "planet-day", "planet/day": "planet-day", "day": "planet-day",
}

// geofabrikRegions maps a short region name to its path under
// download.geofabrik.de. Geofabrik mirrors a subset of the planet, updated
// daily, which makes a regional import/update cycle far cheaper than
// tracking the full planet feed for anyone working one country or continent.
var geofabrikRegions = map[string]string{
	"europe": "europe", "germany": "europe/germany", "france": "europe/france",
	"italy": "europe/italy", "spain": "europe/spain",
	"united-kingdom": "europe/great-britain", "great-britain": "europe/great-britain",
	"netherlands": "europe/netherlands", "belgium": "europe/belgium",
	"switzerland": "europe/switzerland", "austria": "europe/austria",
	"poland": "europe/poland", "monaco": "europe/monaco",

	"north-america": "north-america", "us": "north-america/us", "usa": "north-america/us",
	"canada": "north-america/canada", "mexico": "north-america/mexico",
	"south-america": "south-america", "brazil": "south-america/brazil",

	"asia": "asia", "japan": "asia/japan", "china": "asia/china", "india": "asia/india",

	"africa": "africa",

	"oceania": "australia-oceania", "australia": "australia-oceania/australia",
	"new-zealand": "australia-oceania/new-zealand",
}

// GetGeofabrikSource builds a Source for a Geofabrik region. An unrecognized
// region is still accepted, on the assumption the caller passed a path that
// exists on the mirror but isn't in our shortlist.
func GetGeofabrikSource(region string) (*Source, error) {
	region = strings.ToLower(strings.TrimSpace(region))

	path, ok := geofabrikRegions[region]
	if !ok {
		path = region
	}

	return &Source{
		Name:           "geofabrik/" + region,
		BaseURL:        fmt.Sprintf("https://download.geofabrik.de/%s-updates", path),
		UpdateInterval: 24 * time.Hour,
		Description:    fmt.Sprintf("Geofabrik %s daily updates", region),
	}, nil
}

// ParseSource resolves the --replication-source flag: a planet alias
// ("minute", "planet-hour", ...), "geofabrik/<region>", a bare region name,
// or a direct https:// URL to a replication directory.
func ParseSource(s string) (*Source, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	if key, ok := planetAliases[lower]; ok {
		return planetSources[key], nil
	}

	if strings.HasPrefix(lower, "geofabrik/") {
		region := s[strings.Index(s, "/")+1:]
		return GetGeofabrikSource(region)
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return &Source{
			Name:           "custom",
			BaseURL:        strings.TrimSuffix(s, "/"),
			UpdateInterval: time.Hour,
			Description:    "custom replication source",
		}, nil
	}

	if _, ok := geofabrikRegions[lower]; ok {
		return GetGeofabrikSource(s)
	}

	return nil, fmt.Errorf("replication: unknown source %q", s)
}

// ListSources describes every built-in source, for the `replication
// sources` subcommand's help output.
func ListSources() []string {
	out := []string{
		"planet-minute - OpenStreetMap planet minutely updates",
		"planet-hour   - OpenStreetMap planet hourly updates",
		"planet-day    - OpenStreetMap planet daily updates",
		"",
		"Geofabrik regions (use as geofabrik/<region>):",
	}
	for region := range geofabrikRegions {
		out = append(out, "  geofabrik/"+region)
	}
	return out
}
