// Package category
package category

import (
	"sort"
	"strconv"
	"strings"
)

// ID is a category in the global Newznab/Torznab taxonomy.
type ID int

const (
	Console       ID = 1000
	Movies        ID = 2000
	MoviesForeign ID = 2010
	MoviesOther   ID = 2020
	MoviesSD      ID = 2030
	MoviesHD      ID = 2040
	MoviesUHD     ID = 2045
	MoviesBluRay  ID = 2050
	Movies3D      ID = 2060
	Audio         ID = 3000
	AudioMP3      ID = 3010
	AudioLossless ID = 3040
	AudioBook     ID = 3030
	PC            ID = 4000
	PCGames       ID = 4050
	TV            ID = 5000
	TVWEBDL       ID = 5010
	TVForeign     ID = 5020
	TVSD          ID = 5030
	TVHD          ID = 5040
	TVUHD         ID = 5045
	TVOther       ID = 5050
	TVSport       ID = 5060
	TVAnime       ID = 5070
	TVDocumentary ID = 5080
	XXX           ID = 6000
	Books         ID = 7000
	BooksEBook    ID = 7020
	BooksComics   ID = 7030
	Other         ID = 8000
	OtherMisc     ID = 8010
)

var names = map[ID]string{
	Console:       "Console",
	Movies:        "Movies",
	MoviesForeign: "Movies/Foreign",
	MoviesOther:   "Movies/Other",
	MoviesSD:      "Movies/SD",
	MoviesHD:      "Movies/HD",
	MoviesUHD:     "Movies/UHD",
	MoviesBluRay:  "Movies/BluRay",
	Movies3D:      "Movies/3D",
	Audio:         "Audio",
	AudioMP3:      "Audio/MP3",
	AudioLossless: "Audio/Lossless",
	AudioBook:     "Audio/Audiobook",
	PC:            "PC",
	PCGames:       "PC/Games",
	TV:            "TV",
	TVWEBDL:       "TV/WEB-DL",
	TVForeign:     "TV/Foreign",
	TVSD:          "TV/SD",
	TVHD:          "TV/HD",
	TVUHD:         "TV/UHD",
	TVOther:       "TV/Other",
	TVSport:       "TV/Sport",
	TVAnime:       "TV/Anime",
	TVDocumentary: "TV/Documentary",
	XXX:           "XXX",
	Books:         "Books",
	BooksEBook:    "Books/EBook",
	BooksComics:   "Books/Comics",
	Other:         "Other",
	OtherMisc:     "Other/Misc",
}

// Name returns the display name of a known category or its numeric form.
func (id ID) Name() string {
	if n, ok := names[id]; ok {
		return n
	}
	return strconv.Itoa(int(id))
}

// Known reports whether the id is part of the standard taxonomy.
func (id ID) Known() bool {
	_, ok := names[id]
	return ok
}

// Parent returns the top-level category (e.g. 5040 -> 5000).
func (id ID) Parent() ID {
	if id < 1000 || id >= 100000 {
		return id
	}
	return id / 1000 * 1000
}

// IsParent reports whether id is a top-level category.
func (id ID) IsParent() bool {
	return id >= 1000 && id%1000 == 0
}

// Contains reports whether other is id itself or one of its children.
func (id ID) Contains(other ID) bool {
	if id == other {
		return true
	}
	return id.IsParent() && other.Parent() == id
}

func IsTV(id ID) bool    { return id.Parent() == TV }
func IsMovie(id ID) bool { return id.Parent() == Movies }

// AnyTV reports whether the set contains a TV category.
func AnyTV(ids []ID) bool {
	for _, id := range ids {
		if IsTV(id) {
			return true
		}
	}
	return false
}

// AnyMovie reports whether the set contains a movie category.
func AnyMovie(ids []ID) bool {
	for _, id := range ids {
		if IsMovie(id) {
			return true
		}
	}
	return false
}

// Normalize returns a sorted copy of ids without duplicates.
func Normalize(ids []ID) []ID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseList parses a comma separated list such as "5000,5040". Invalid entries are skipped.
func ParseList(raw string) []ID {
	var ids []ID
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		ids = append(ids, ID(n))
	}
	return Normalize(ids)
}
