package recognition

import (
	"fmt"
	"time"
)

// Links holds streaming service URLs for a track
type Links struct {
	Odesli       string `json:"odesli,omitempty"`
	Spotify      string `json:"spotify,omitempty"`
	YouTube      string `json:"youtube,omitempty"`
	YouTubeMusic string `json:"youtube_music,omitempty"`
	SoundCloud   string `json:"soundcloud,omitempty"`
	AppleMusic   string `json:"apple_music,omitempty"`
	Deezer       string `json:"deezer,omitempty"`
	Tidal        string `json:"tidal,omitempty"`
	AmazonMusic  string `json:"amazon_music,omitempty"`
	Napster      string `json:"napster,omitempty"`
}

// Artwork holds cover art URLs for a track
type Artwork struct {
	URL      string `json:"url,omitempty"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// Track is a recognized piece of music
type Track struct {
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	Album         string    `json:"album,omitempty"`
	ReleaseDate   string    `json:"release_date,omitempty"`
	Label         string    `json:"label,omitempty"`
	ISRC          string    `json:"isrc,omitempty"`
	MusicBrainzID string    `json:"musicbrainz_id,omitempty"`
	Links         Links     `json:"links"`
	Artwork       Artwork   `json:"artwork"`
	RecognizedAt  time.Time `json:"recognized_at"`
}

// String returns "Artist - Title"
func (t Track) String() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// ResultKind classifies a recognizer response
type ResultKind int

const (
	// KindSuccess means a track was matched
	KindSuccess ResultKind = iota
	// KindNoMatch means the sample was valid but nothing matched yet
	KindNoMatch
	// KindConnectivityFailure means the service could not be reached in time
	KindConnectivityFailure
	// KindOtherFailure covers every other service or client error
	KindOtherFailure
)

func (k ResultKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindNoMatch:
		return "no_match"
	case KindConnectivityFailure:
		return "connectivity_failure"
	case KindOtherFailure:
		return "other_failure"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// FailureReason describes why a recognition attempt did not produce a track
type FailureReason struct {
	Category Category `json:"category"`
	Code     int      `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
}

func (r FailureReason) String() string {
	if r.Code != 0 {
		return fmt.Sprintf("%s (%d): %s", r.Category, r.Code, r.Message)
	}
	if r.Message != "" {
		return fmt.Sprintf("%s: %s", r.Category, r.Message)
	}
	return r.Category.String()
}

// Result is the answer of a recognizer for one sample
type Result struct {
	Kind   ResultKind
	Track  *Track
	Reason FailureReason
}

// Matched builds a success result
func Matched(track Track) Result {
	return Result{Kind: KindSuccess, Track: &track}
}

// NoMatch builds a result for a sample that matched nothing
func NoMatch() Result {
	return Result{Kind: KindNoMatch, Reason: FailureReason{Category: NoMatches}}
}

// ConnectivityFailure builds a result for a network problem
func ConnectivityFailure(err error) Result {
	reason := FailureReason{Category: BadConnection}
	if err != nil {
		reason.Message = err.Error()
	}
	return Result{Kind: KindConnectivityFailure, Reason: reason}
}

// OtherFailure builds a result for an unexpected error
func OtherFailure(code int, message string) Result {
	return Result{
		Kind:   KindOtherFailure,
		Reason: FailureReason{Category: AnotherFailure, Code: code, Message: message},
	}
}
