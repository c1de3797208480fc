package recognizer

import (
	"strconv"
	"strings"

	"github.com/emmett/earworm/internal/recognition"
)

type response struct {
	Status string         `json:"status"`
	Result *trackResponse `json:"result"`
	Error  *errorResponse `json:"error"`
}

type errorResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

type trackResponse struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	ReleaseDate string `json:"release_date"`
	Label       string `json:"label"`
	SongLink    string `json:"song_link"`

	AppleMusic *struct {
		URL     string `json:"url"`
		ISRC    string `json:"isrc"`
		Artwork *struct {
			URL string `json:"url"`
		} `json:"artwork"`
	} `json:"apple_music"`

	Spotify *struct {
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
		ExternalIDs struct {
			ISRC string `json:"isrc"`
		} `json:"external_ids"`
		Album struct {
			Images []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"images"`
		} `json:"album"`
	} `json:"spotify"`

	Deezer *struct {
		Link  string `json:"link"`
		Album struct {
			CoverXL     string `json:"cover_xl"`
			CoverBig    string `json:"cover_big"`
			CoverMedium string `json:"cover_medium"`
		} `json:"album"`
	} `json:"deezer"`

	MusicBrainz []struct {
		ID    string   `json:"id"`
		ISRCs []string `json:"isrcs"`
	} `json:"musicbrainz"`
}

func (r *trackResponse) track() recognition.Track {
	t := recognition.Track{
		Title:       r.Title,
		Artist:      r.Artist,
		Album:       r.Album,
		ReleaseDate: r.ReleaseDate,
		Label:       r.Label,
	}

	if am := r.AppleMusic; am != nil {
		t.Links.AppleMusic = am.URL
		t.ISRC = am.ISRC
		if am.Artwork != nil && am.Artwork.URL != "" {
			t.Artwork = recognition.Artwork{
				URL:      appleArtwork(am.Artwork.URL, 1000),
				ThumbURL: appleArtwork(am.Artwork.URL, 300),
			}
		}
	}

	if sp := r.Spotify; sp != nil {
		t.Links.Spotify = sp.ExternalURLs.Spotify
		if t.ISRC == "" {
			t.ISRC = sp.ExternalIDs.ISRC
		}
		// spotify lists images largest first
		if images := sp.Album.Images; t.Artwork.URL == "" && len(images) > 0 {
			t.Artwork.URL = images[0].URL
			if len(images) > 1 {
				t.Artwork.ThumbURL = images[len(images)/2].URL
			}
		}
	}

	if dz := r.Deezer; dz != nil {
		t.Links.Deezer = dz.Link
		if t.Artwork.URL == "" {
			t.Artwork.URL = firstNonEmpty(dz.Album.CoverXL, dz.Album.CoverBig)
			if t.Artwork.URL != "" {
				t.Artwork.ThumbURL = dz.Album.CoverMedium
			}
		}
	}

	if len(r.MusicBrainz) > 0 {
		t.MusicBrainzID = r.MusicBrainz[0].ID
		if t.ISRC == "" && len(r.MusicBrainz[0].ISRCs) > 0 {
			t.ISRC = r.MusicBrainz[0].ISRCs[0]
		}
	}

	return t
}

// appleArtwork fills the size placeholders of an Apple Music artwork template
func appleArtwork(template string, size int) string {
	s := strconv.Itoa(size)
	return strings.NewReplacer("{w}", s, "{h}", s).Replace(template)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
