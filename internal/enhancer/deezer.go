package enhancer

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/emmett/earworm/internal/recognition"
)

// DefaultDeezerEndpoint is the public Deezer API
const DefaultDeezerEndpoint = "https://api.deezer.com/"

var deezerTrackURL = regexp.MustCompile(`^https://www\.deezer\.com/(?:[a-z]{2}/)?track/(\d+)`)

type deezerTrack struct {
	Album *struct {
		CoverXL     string `json:"cover_xl"`
		CoverBig    string `json:"cover_big"`
		CoverMedium string `json:"cover_medium"`
	} `json:"album"`
	Artist *struct {
		PictureXL     string `json:"picture_xl"`
		PictureBig    string `json:"picture_big"`
		PictureMedium string `json:"picture_medium"`
	} `json:"artist"`
}

// Deezer fetches artwork from the Deezer track API
type Deezer struct {
	client *resty.Client
}

// NewDeezer creates a Deezer client
func NewDeezer(endpoint string, timeout time.Duration) *Deezer {
	if endpoint == "" {
		endpoint = DefaultDeezerEndpoint
	}
	client := resty.New().SetBaseURL(endpoint)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Deezer{client: client}
}

// TrackID extracts the numeric id from a Deezer track URL
func TrackID(link string) (string, bool) {
	m := deezerTrackURL.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Artwork returns the best artwork for a Deezer track link. Album art with a
// thumbnail wins, then artist art with a thumbnail, then whichever has a URL.
// A zero Artwork means nothing usable was found.
func (d *Deezer) Artwork(ctx context.Context, link string) (recognition.Artwork, error) {
	id, ok := TrackID(link)
	if !ok {
		return recognition.Artwork{}, fmt.Errorf("not a deezer track link: %s", link)
	}

	var body deezerTrack
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		ForceContentType("application/json").
		Get("track/" + id)
	if err != nil {
		return recognition.Artwork{}, fmt.Errorf("deezer request failed: %w", err)
	}
	if resp.IsError() {
		return recognition.Artwork{}, fmt.Errorf("deezer returned %s", resp.Status())
	}

	var album, artist recognition.Artwork
	if a := body.Album; a != nil {
		album.URL = firstNonEmpty(a.CoverXL, a.CoverBig)
		if album.URL != "" {
			album.ThumbURL = a.CoverMedium
		}
	}
	if a := body.Artist; a != nil {
		artist.URL = firstNonEmpty(a.PictureXL, a.PictureBig)
		if artist.URL != "" {
			artist.ThumbURL = a.PictureMedium
		}
	}

	switch {
	case album.URL != "" && album.ThumbURL != "":
		return album, nil
	case artist.URL != "" && artist.ThumbURL != "":
		return artist, nil
	case album.URL != "":
		return album, nil
	default:
		return artist, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
