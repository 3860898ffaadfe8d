package titlenorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metasearch/packages/category"
)

func parser(t *testing.T, key string) Func {
	t.Helper()
	fn, ok := Lookup(key)
	require.True(t, ok, "parser %q not registered", key)
	return fn
}

func TestRegistry(t *testing.T) {
	assert.Subset(t, Keys(), []string{"en", "ru", "uk"})

	_, ok := Lookup("nope")
	assert.False(t, ok)

	Register("test-identity", Identity)
	fn := parser(t, "test-identity")
	assert.Equal(t, "Сезон 1", fn("Сезон 1", nil, Options{}))
}

func TestEnglishRangesAndLists(t *testing.T) {
	en := parser(t, "en")
	tests := []struct {
		in   string
		want string
	}{
		{"Show (Season 2, Episode 1,2 of XX)", "Show (S2E1-2 of XX)"},
		{"Show (seasons 1-2, episodes 14 of 20)", "Show (S1-2, E14 of 20)"},
		{"Show Season 3 Episode 5", "Show S3E5"},
		{"Show Season 1, Episodes 1-3,5", "Show S1E1-3-E5"},
		{"Show season: 4", "Show S4"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, en(tt.in, nil, Options{}))
		})
	}
}

func TestEnglishEpisodeOnlyTitles(t *testing.T) {
	en := parser(t, "en")
	tests := []struct {
		name string
		in   string
		cats []category.ID
		want string
	}{
		{"film without categories", "Star Wars Episode 4 A New Hope 1977", nil, "Star Wars Episode 4 A New Hope 1977"},
		{"film category", "Star Wars Episode 4 A New Hope 1977", []category.ID{category.MoviesHD}, "Star Wars Episode 4 A New Hope 1977"},
		{"tv category", "Show Episodes 1,3,4", []category.ID{category.TV}, "Show E1-E3-E4"},
		{"tv child category", "Show Episode 7", []category.ID{category.TVHD}, "Show E7"},
		{"season word present", "Show Season 2 Episode 3", nil, "Show S2E3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, en(tt.in, tt.cats, Options{}))
		})
	}
}

func TestRussian(t *testing.T) {
	ru := parser(t, "ru")
	tests := []struct {
		name string
		in   string
		opts Options
		want string
	}{
		{
			name: "single segment",
			in:   "Друзья (Сезон 1, Серии 1-8 из 10) [2020, WEB-DL]",
			want: "Друзья (S1E1-8 of 10) [2020, WEB-DL]",
		},
		{
			name: "cyrillic unknown total",
			in:   "Сериал (Сезон 1, Серия 5 из ХХ)",
			want: "Сериал (S1E5 of XX)",
		},
		{
			name: "descriptor spans segments and lands in latin segment",
			in:   "Друзья / Friends / Сезон: 10 / Серии: 1-18 из 18 [1994, WEB-DL 1080p]",
			want: "Друзья / Friends / S10E1-18 of 18 [1994, WEB-DL 1080p]",
		},
		{
			name: "strip keeps latin segments",
			in:   "Друзья / Friends / Сезон: 10 / Серии: 1-18 из 18 [1994, WEB-DL 1080p]",
			opts: Options{StripNonLatin: true},
			want: "Friends / S10E1-18 of 18 [1994, WEB-DL 1080p]",
		},
		{
			name: "retain moves descriptors of non-latin segment to the end",
			in:   "Теория большого взрыва / The Big Bang Theory / Сезон: 12 / Серии: 1-24 из 24 (Марк Сендровски) [2018, США, комедия]",
			want: "Теория большого взрыва / The Big Bang Theory / (Марк Сендровски) [2018, США, комедия] S12E1-24 of 24",
		},
		{
			name: "strip drops non-latin segment",
			in:   "Теория большого взрыва / The Big Bang Theory / Сезон: 12 / Серии: 1-24 из 24 (Марк Сендровски) [2018, США, комедия]",
			opts: Options{StripNonLatin: true},
			want: "The Big Bang Theory S12E1-24 of 24",
		},
		{
			name: "season and episode tokens merge at the end",
			in:   "Сериал / Series / Сезон 3 (Серии 1-4)",
			want: "Сериал / Series S3E1-4",
		},
		{
			name: "strip with token-only segment",
			in:   "Сериал / Series / Сезон 3 (Серии 1-4)",
			opts: Options{StripNonLatin: true},
			want: "Series S3E1-4",
		},
		{
			name: "strip without latin segment falls back to retain",
			in:   "Сериал / Сезон 2 / Серии 5",
			opts: Options{StripNonLatin: true},
			want: "Сериал S2E5",
		},
		{
			name: "dashes normalized",
			in:   "Сериал – Сезон 1",
			want: "Сериал - S1",
		},
		{
			name: "no descriptor",
			in:   "Друзья / Friends [1994, WEB-DL 1080p]",
			want: "Друзья / Friends [1994, WEB-DL 1080p]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ru(tt.in, nil, tt.opts))
		})
	}
}

func TestUkrainianPadsSeason(t *testing.T) {
	uk := parser(t, "uk")
	assert.Equal(t, "Серіал (S02E1-5 of 10)", uk("Серіал (Сезон 2, Серії 1-5 з 10)", nil, Options{}))
	assert.Equal(t, "Серіал (S1-2)", uk("Серіал (Сезони 1-2)", nil, Options{}))
}

func TestCategoryGate(t *testing.T) {
	ru := parser(t, "ru")
	in := "Друзья (Сезон 1, Серии 1-8 из 10)"

	assert.Equal(t, in, ru(in, []category.ID{category.Movies}, Options{}))
	assert.Equal(t, in, ru(in, []category.ID{category.MoviesHD, category.Other}, Options{}))
	assert.Equal(t, "Друзья (S1E1-8 of 10)", ru(in, []category.ID{category.TVHD}, Options{}))
	assert.Equal(t, "Друзья (S1E1-8 of 10)", ru(in, []category.ID{category.Movies, category.TV}, Options{}))
	assert.Equal(t, "Друзья (S1E1-8 of 10)", ru(in, nil, Options{}))
}

func TestScriptGate(t *testing.T) {
	assert.Equal(t, "Friends Season 1", parser(t, "ru")("Friends Season 1", nil, Options{}))
	assert.Equal(t, "Friends S1", parser(t, "en")("Friends Season 1", nil, Options{}))
}

func TestCanonicalTitlesPassThrough(t *testing.T) {
	titles := []string{
		"The Good Lord S01E05 1080p WEB-DL",
		"Show (S2E1-2 of XX)",
		"Show.S01.1080p.BluRay.x264",
		"Movie Title (2019) [1080p]",
		"Show S01E01-E03 – Pilot",
		"Show / Alt Name S03E10",
	}
	for _, key := range Keys() {
		fn := parser(t, key)
		for _, title := range titles {
			for _, opts := range []Options{{}, {StripNonLatin: true}} {
				assert.Equal(t, title, fn(title, nil, opts), "%s: %s", key, title)
			}
		}
	}
}

func TestFormatEpisodes(t *testing.T) {
	tests := map[string]string{
		"1":       "1",
		"14":      "14",
		"1,2":     "1-2",
		"1, 2, 3": "1-3",
		"1,3":     "1-E3",
		"1-3,5":   "1-3-E5",
		"01-02":   "01-02",
		"1 - 2":   "1-2",
		"2,1":     "2-E1",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatEpisodes(in), in)
	}
}
