package enhancer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/emmett/earworm/internal/recognition"
)

// DefaultOdesliEndpoint is the public song.link API
const DefaultOdesliEndpoint = "https://api.song.link/v1-alpha.1/"

type odesliLink struct {
	URL string `json:"url"`
}

type odesliResponse struct {
	PageURL         string                `json:"pageUrl"`
	LinksByPlatform map[string]odesliLink `json:"linksByPlatform"`
}

// Odesli looks up streaming links for a track given any one of them
type Odesli struct {
	client  *resty.Client
	country string
}

// NewOdesli creates an Odesli client. country is an optional ISO 3166 code
// that selects regional catalogues.
func NewOdesli(endpoint, country string, timeout time.Duration) *Odesli {
	if endpoint == "" {
		endpoint = DefaultOdesliEndpoint
	}
	client := resty.New().SetBaseURL(endpoint)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Odesli{client: client, country: country}
}

// Links fetches the links known for the track behind sourceURL
func (o *Odesli) Links(ctx context.Context, sourceURL string) (recognition.Links, error) {
	params := map[string]string{"url": sourceURL}
	if o.country != "" {
		params["userCountry"] = o.country
	}

	var body odesliResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		ForceContentType("application/json").
		Get("links")
	if err != nil {
		return recognition.Links{}, fmt.Errorf("odesli request failed: %w", err)
	}
	if resp.IsError() {
		return recognition.Links{}, fmt.Errorf("odesli returned %s", resp.Status())
	}

	url := func(platform string) string {
		return body.LinksByPlatform[platform].URL
	}
	return recognition.Links{
		Odesli:       body.PageURL,
		Spotify:      url("spotify"),
		YouTube:      url("youtube"),
		YouTubeMusic: url("youtubeMusic"),
		SoundCloud:   url("soundcloud"),
		AppleMusic:   url("appleMusic"),
		Deezer:       url("deezer"),
		Tidal:        url("tidal"),
		AmazonMusic:  url("amazonMusic"),
		Napster:      url("napster"),
	}, nil
}

// merge fills empty fields of dst from src
func merge(dst *recognition.Links, src recognition.Links) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.Odesli, src.Odesli)
	fill(&dst.Spotify, src.Spotify)
	fill(&dst.YouTube, src.YouTube)
	fill(&dst.YouTubeMusic, src.YouTubeMusic)
	fill(&dst.SoundCloud, src.SoundCloud)
	fill(&dst.AppleMusic, src.AppleMusic)
	fill(&dst.Deezer, src.Deezer)
	fill(&dst.Tidal, src.Tidal)
	fill(&dst.AmazonMusic, src.AmazonMusic)
	fill(&dst.Napster, src.Napster)
}

// sourceLink picks the link Odesli resolves most reliably
func sourceLink(l recognition.Links) string {
	for _, u := range []string{l.Spotify, l.AppleMusic, l.Deezer, l.YouTube, l.SoundCloud, l.Tidal} {
		if u != "" {
			return u
		}
	}
	return ""
}
