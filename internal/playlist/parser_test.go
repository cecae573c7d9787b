package playlist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"strmsync/internal/catalog"
	"strmsync/internal/services"
	"strmsync/internal/titlekey"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="" tvg-name="The Matrix (1999)" group-title="Movies 4K",The Matrix (1999) [2160p]
http://example.test/movie/1.mkv
#EXTINF:-1 group-title="Action Movies",the.matrix.1999.4k
http://example.test/movie/2.mkv
#EXTINF:-1 group-title="Series Drama",Breaking Bad S01E02
http://example.test/series/3.mkv
#EXTINF:-1 group-title="Documentary",Planet Earth (2006)
http://example.test/doc/4.mkv
#EXTINF:-1 group-title="Sports Replays",Final 2022
http://example.test/replay/5.mkv
#EXTINF:-1 group-title="Kids",Bluey S01E01
http://example.test/kids/6.mkv
#EXTINF:-1 group-title="Movies",Missing URL (2001)
#EXTINF:-1 group-title="Movies",Heat (1995)
not a url
#EXTINF:-1 group-title="Movies",
http://example.test/movie/8.mkv
#EXTINF:-1 group-title="Movies",Cam Rip Special (2020)
http://example.test/movie/9.mkv
`

func testClassifier() *Classifier {
	return NewClassifier(
		Keywords{
			Movie:       []string{"Movie"},
			TV:          []string{"series"},
			Documentary: []string{"documentar"},
			Replay:      []string{"replay"},
		},
		IgnoreRules{Movie: []string{"cam rip"}},
	)
}

func TestParseSamplePlaylist(t *testing.T) {
	var seen []string
	res, err := Parse(context.Background(), strings.NewReader(samplePlaylist), testClassifier(), Options{
		OnEntry: func(_ int, e catalog.Entry) { seen = append(seen, e.Title) },
	})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(res.Entries), res.Entries)
	}
	first := res.Entries[0]
	if first.URL != "http://example.test/movie/1.mkv" || first.Category != catalog.CategoryMovie {
		t.Fatalf("expected first occurrence retained, got %+v", first)
	}
	if first.Key != titlekey.Normalize("the.matrix.1999.4k", titlekey.Hint{}) {
		t.Fatalf("unexpected key %q", first.Key)
	}
	if first.Line != 2 {
		t.Fatalf("expected line 2, got %d", first.Line)
	}

	tv := res.Entries[1]
	if tv.Category != catalog.CategoryTV || tv.Season != 1 || tv.Episode != 2 || tv.Title != "Breaking Bad" {
		t.Fatalf("unexpected tv entry: %+v", tv)
	}
	if res.Entries[2].Category != catalog.CategoryDocumentary || res.Entries[2].Year != 2006 {
		t.Fatalf("unexpected documentary entry: %+v", res.Entries[2])
	}

	stats := res.Stats
	if stats.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %d", stats.Duplicates)
	}
	if stats.ParseErrors != 3 || len(res.Errors) != 3 {
		t.Fatalf("expected 3 parse errors, got %d (%v)", stats.ParseErrors, res.Errors)
	}
	for _, perr := range res.Errors {
		if !errors.Is(perr, services.ErrPlaylistFormat) {
			t.Fatalf("expected playlist format marker, got %v", perr)
		}
	}
	if stats.Unclassified != 1 || stats.Ignored != 1 {
		t.Fatalf("unexpected unclassified/ignored: %+v", stats)
	}
	if res.Replays != 1 || stats.Found[catalog.CategoryReplay] != 1 {
		t.Fatalf("expected one replay, got %d", res.Replays)
	}
	if stats.MissingHeader {
		t.Fatal("header should be detected")
	}
	if len(seen) != 3 {
		t.Fatalf("expected OnEntry for each retained entry, got %v", seen)
	}
}

func TestParseMissingHeaderTolerated(t *testing.T) {
	input := "#EXTINF:-1 group-title=\"Movies\",Heat (1995)\nhttp://example.test/heat.mkv\n"
	res, err := Parse(context.Background(), strings.NewReader(input), testClassifier(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Stats.MissingHeader {
		t.Fatal("expected missing header to be reported")
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected entry despite missing header, got %d", len(res.Entries))
	}
}

func TestParseTVWithoutEpisodeDefaults(t *testing.T) {
	input := "#EXTM3U\n#EXTINF:-1 group-title=\"Series\",Planet Special\nhttp://example.test/p.mkv\n"
	res, err := Parse(context.Background(), strings.NewReader(input), testClassifier(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	e := res.Entries[0]
	if e.Season != 1 || e.Episode != 1 || e.Key != titlekey.EpisodeKey("Planet Special", 1, 1) {
		t.Fatalf("expected S01E01 default, got %+v", e)
	}
}

func TestParseTitleWithCommas(t *testing.T) {
	input := "#EXTM3U\n#EXTINF:-1 tvg-name=\"x\" group-title=\"Movies, Classic\",Crazy, Stupid, Love (2011)\nhttp://example.test/c.mkv\n"
	res, err := Parse(context.Background(), strings.NewReader(input), testClassifier(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(res.Entries))
	}
	e := res.Entries[0]
	if e.RawTitle != "Crazy, Stupid, Love (2011)" || e.Group != "Movies, Classic" || e.Year != 2011 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestParseEXTGRPFallback(t *testing.T) {
	input := "#EXTM3U\n#EXTINF:-1,Heat (1995)\n#EXTGRP:Movies\nhttp://example.test/heat.mkv\n"
	res, err := Parse(context.Background(), strings.NewReader(input), testClassifier(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Group != "Movies" {
		t.Fatalf("expected group from #EXTGRP, got %+v", res.Entries)
	}
}

func TestParseLineTooLong(t *testing.T) {
	input := "#EXTM3U\n#EXTINF:-1 group-title=\"Movies\",Heat (1995)\nhttp://example.test/" + strings.Repeat("a", 2*maxLineBytes) + "\n"
	_, err := Parse(context.Background(), strings.NewReader(input), testClassifier(), Options{})
	if !errors.Is(err, services.ErrPlaylistFormat) {
		t.Fatalf("expected playlist format error, got %v", err)
	}
}

func TestParseCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, strings.NewReader(samplePlaylist), testClassifier(), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLooksLikeURL(t *testing.T) {
	cases := map[string]bool{
		"http://a/b":        true,
		"https://a/b?x=1":   true,
		"rtmp://host/live":  true,
		"not a url":         false,
		"://missing-scheme": false,
		"http://":           false,
		"http://a b":        false,
	}
	for input, want := range cases {
		if got := looksLikeURL(input); got != want {
			t.Fatalf("looksLikeURL(%q) = %v, want %v", input, got, want)
		}
	}
}
