package titlekey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Version identifies the normalization rules. Stored alongside cached
// decisions; a mismatch invalidates the whole cache.
const Version = 2

// Key is a normalized title identity.
type Key string

func (k Key) String() string { return string(k) }

// IsTV reports whether the key identifies a TV episode.
func (k Key) IsTV() bool { return strings.HasPrefix(string(k), tvPrefix) }

const (
	moviePrefix = "movie:"
	tvPrefix    = "tv:"
)

// Hint carries metadata known from outside the title itself. Zero values
// mean "unknown"; non-zero values take precedence over anything parsed.
type Hint struct {
	Year    int
	Season  int
	Episode int
	TV      bool
}

// Parsed is the structured reading of a raw title.
type Parsed struct {
	// Title is the cleaned display title (original casing, release tail removed).
	Title      string
	Year       int
	Season     int
	Episode    int
	HasEpisode bool
}

var (
	episodePattern    = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])s(\d{1,2})[ ._-]?e(\d{1,3})(?:[^0-9]|$)`)
	crossEpPattern    = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^0-9]|$)`)
	yearParenPattern  = regexp.MustCompile(`[\(\[]((?:19|20)\d{2})[\)\]]`)
	yearBarePattern   = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
	bracketPattern    = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
	emptyParenPattern = regexp.MustCompile(`\(\s*\)`)
	langPrefixPattern = regexp.MustCompile(`^\s*[|\[(]?\s*([A-Za-z]{2,5})\s*[|\])]?\s*[-:|]\s+`)
	nonWordPattern    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// languagePrefixes are IPTV provider prefixes such as "EN - " or "|FR| ".
var languagePrefixes = map[string]struct{}{
	"en": {}, "fr": {}, "de": {}, "es": {}, "it": {}, "nl": {}, "pt": {}, "pl": {},
	"tr": {}, "ar": {}, "us": {}, "uk": {}, "gb": {}, "ca": {}, "multi": {}, "vost": {},
	"vo": {}, "vf": {}, "sub": {}, "4k": {}, "uhd": {}, "hd": {}, "fhd": {},
}

// releaseTokens are quality and encoding markers that do not occur as
// ordinary words. A title is cut at the first one after its opening word;
// words that are also plain English (web, cam, vision, proper, french...)
// are deliberately absent.
var releaseTokens = map[string]struct{}{
	"480p": {}, "576p": {}, "720p": {}, "1080p": {}, "1080i": {}, "2160p": {}, "4320p": {},
	"4k": {}, "8k": {}, "uhd": {}, "fhd": {}, "hdr": {}, "hdr10": {}, "sdr": {}, "10bit": {}, "8bit": {},
	"x264": {}, "x265": {}, "h264": {}, "h265": {}, "hevc": {}, "xvid": {}, "divx": {}, "av1": {},
	"bluray": {}, "bdrip": {}, "brrip": {}, "bdremux": {}, "webrip": {}, "webdl": {},
	"hdtv": {}, "dvdrip": {}, "hdrip": {},
	"aac": {}, "ac3": {}, "eac3": {}, "ddp": {}, "truehd": {},
	"vostfr": {}, "truefrench": {},
}

var (
	foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	titleCaser      = cases.Title(language.Und)
)

// Parse extracts the clean title, year, and season/episode from a raw title.
func Parse(raw string) Parsed {
	text := fold(raw)
	text = stripLanguagePrefix(text)

	var out Parsed
	if loc, season, episode, ok := findEpisode(text); ok {
		out.Season, out.Episode, out.HasEpisode = season, episode, true
		text = text[:loc]
	}

	if m := yearParenPattern.FindStringSubmatchIndex(text); m != nil {
		out.Year, _ = strconv.Atoi(text[m[2]:m[3]])
		text = text[:m[0]]
	} else if start, year, ok := lastBareYear(text); ok {
		out.Year = year
		text = text[:start]
	}

	text = bracketPattern.ReplaceAllString(text, " ")
	text = emptyParenPattern.ReplaceAllString(text, " ")
	out.Title = cleanTitle(text)
	return out
}

// Normalize produces the canonical key for a title. Hints override parsed
// values; a title is treated as TV when the hint says so or an episode
// marker was found.
func Normalize(raw string, hint Hint) Key {
	parsed := Parse(raw)
	year := parsed.Year
	if hint.Year > 0 {
		year = hint.Year
	}
	season, episode := parsed.Season, parsed.Episode
	if hint.Season > 0 {
		season = hint.Season
	}
	if hint.Episode > 0 {
		episode = hint.Episode
	}
	if hint.TV || parsed.HasEpisode {
		return EpisodeKey(parsed.Title, season, episode)
	}
	return MovieKey(parsed.Title, year)
}

// MovieKey builds a movie (or documentary) key from an already-clean title.
func MovieKey(title string, year int) Key {
	return Key(fmt.Sprintf("%s%s|%d", moviePrefix, canonical(title), year))
}

// EpisodeKey builds a TV episode key from an already-clean show title.
func EpisodeKey(show string, season, episode int) Key {
	return Key(fmt.Sprintf("%s%s|s%02de%02d", tvPrefix, canonical(show), season, episode))
}

// DisplayTitle returns a human-friendly title: title-cased when
// the source was entirely upper- or lower-case.
func DisplayTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	if title == strings.ToLower(title) || title == strings.ToUpper(title) {
		return titleCaser.String(strings.ToLower(title))
	}
	return title
}

func fold(value string) string {
	folded, _, err := transform.String(foldTransformer, value)
	if err != nil {
		return value
	}
	return folded
}

func stripLanguagePrefix(text string) string {
	m := langPrefixPattern.FindStringSubmatchIndex(text)
	if m == nil {
		return text
	}
	if _, ok := languagePrefixes[strings.ToLower(text[m[2]:m[3]])]; !ok {
		return text
	}
	return text[m[1]:]
}

func findEpisode(text string) (int, int, int, bool) {
	for _, pattern := range []*regexp.Regexp{episodePattern, crossEpPattern} {
		m := pattern.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		season, _ := strconv.Atoi(text[m[2]:m[3]])
		episode, _ := strconv.Atoi(text[m[4]:m[5]])
		return m[0], season, episode, true
	}
	return 0, 0, 0, false
}

// lastBareYear finds the last standalone 19xx/20xx token that is not the
// first word of the title, so "1917" keeps its name while
// "the.matrix.1999.4k" yields 1999.
func lastBareYear(text string) (int, int, bool) {
	matches := yearBarePattern.FindAllStringSubmatchIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start := matches[i][2]
		if strings.TrimSpace(nonWordPattern.ReplaceAllString(text[:start], " ")) == "" {
			continue
		}
		year, _ := strconv.Atoi(text[start:matches[i][3]])
		return start, year, true
	}
	return 0, 0, false
}

// cleanTitle drops separators and the release tail while preserving casing.
// Leading release markers are skipped; the tail starts at the first marker
// after a title word. The words are kept as-is when nothing else remains.
func cleanTitle(text string) string {
	text = strings.NewReplacer("'", "", "’", "", "&", " and ").Replace(text)
	var words []string
	for _, word := range nonWordPattern.Split(text, -1) {
		if word != "" {
			words = append(words, word)
		}
	}
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if _, marker := releaseTokens[strings.ToLower(word)]; marker {
			if len(kept) > 0 {
				break
			}
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		kept = words
	}
	return strings.Join(kept, " ")
}

func canonical(title string) string {
	return strings.ToLower(cleanTitle(fold(title)))
}
