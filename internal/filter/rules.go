package filter

import (
	"strings"

	"strmsync/internal/cache"
	"strmsync/internal/catalog"
	"strmsync/internal/config"
	"strmsync/internal/tmdb"
)

// Rules is the availability policy.
type Rules struct {
	MovieCountries    map[string]struct{}
	TVCountries       map[string]struct{}
	ExcludedLanguages map[string]struct{}
}

// RulesFromConfig builds rules from the [filter] section.
func RulesFromConfig(cfg config.Filter) Rules {
	return Rules{
		MovieCountries:    upperSet(cfg.AllowedMovieCountries),
		TVCountries:       upperSet(cfg.AllowedTVCountries),
		ExcludedLanguages: lowerSet(cfg.ExcludedLanguages),
	}
}

// Decide applies the policy to a lookup result. The reason is empty for
// allowed titles. Documentaries use the movie allow-list.
func (r Rules) Decide(category catalog.Category, info tmdb.Availability) (bool, string) {
	allowed := r.MovieCountries
	if category == catalog.CategoryTV {
		allowed = r.TVCountries
	}
	countryOK := false
	for _, country := range info.Countries {
		if _, ok := allowed[strings.ToUpper(country)]; ok {
			countryOK = true
			break
		}
	}
	if !countryOK {
		return false, cache.ReasonCountry
	}
	if _, excluded := r.ExcludedLanguages[strings.ToLower(info.Language)]; excluded && info.Language != "" {
		return false, cache.ReasonLanguage
	}
	return true, ""
}

func upperSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func lowerSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
