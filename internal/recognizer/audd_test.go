package recognizer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/recognition"
)

const matchBody = `{
  "status": "success",
  "result": {
    "artist": "Daft Punk",
    "title": "Something About Us",
    "album": "Discovery",
    "release_date": "2001-03-12",
    "label": "Virgin",
    "song_link": "https://lis.tn/abc",
    "apple_music": {
      "url": "https://music.apple.com/us/album/x",
      "isrc": "GBDUW0000060",
      "artwork": {"url": "https://is1.mzstatic.com/image/{w}x{h}bb.jpg"}
    },
    "spotify": {
      "external_urls": {"spotify": "https://open.spotify.com/track/1"},
      "external_ids": {"isrc": "GBDUW0000060"},
      "album": {"images": [{"url": "big"}, {"url": "mid"}, {"url": "small"}]}
    },
    "deezer": {"link": "https://www.deezer.com/track/3135556"},
    "musicbrainz": [{"id": "6f9c8c59-0b8b-4bf5-a7a1-9b8e1f0a9c11", "isrcs": ["GBDUW0000060"]}]
  }
}`

func clip(t *testing.T) audio.Clip {
	t.Helper()
	format := audio.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}
	return audio.Clip{Data: make([]byte, format.Offset(time.Second)), Format: format}
}

func serve(t *testing.T, status int, body string, inspect func(*http.Request)) *AudD {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return NewAudD(Config{
		Endpoint:       srv.URL,
		APIToken:       "token-123",
		Timeout:        2 * time.Second,
		ReturnServices: []string{"apple_music", "spotify"},
	}, zaptest.NewLogger(t))
}

func TestRecognizeMatch(t *testing.T) {
	var form map[string][]string
	var header []byte
	a := serve(t, http.StatusOK, matchBody, func(r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		form = r.MultipartForm.Value
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		header = make([]byte, 4)
		_, err = io.ReadFull(f, header)
		assert.NoError(t, err)
	})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	res := a.Recognize(context.Background(), clip(t))
	require.Equal(t, recognition.KindSuccess, res.Kind)

	assert.Equal(t, []string{"token-123"}, form["api_token"])
	assert.Equal(t, []string{"apple_music,spotify"}, form["return"])
	assert.Equal(t, "RIFF", string(header))

	track := res.Track
	assert.Equal(t, "Daft Punk - Something About Us", track.String())
	assert.Equal(t, "Discovery", track.Album)
	assert.Equal(t, "GBDUW0000060", track.ISRC)
	assert.Equal(t, "6f9c8c59-0b8b-4bf5-a7a1-9b8e1f0a9c11", track.MusicBrainzID)
	assert.Equal(t, "https://open.spotify.com/track/1", track.Links.Spotify)
	assert.Equal(t, "https://www.deezer.com/track/3135556", track.Links.Deezer)
	assert.Equal(t, "https://is1.mzstatic.com/image/1000x1000bb.jpg", track.Artwork.URL)
	assert.Equal(t, "https://is1.mzstatic.com/image/300x300bb.jpg", track.Artwork.ThumbURL)
	assert.Equal(t, fixed, track.RecognizedAt)
}

func TestRecognizeNoMatch(t *testing.T) {
	a := serve(t, http.StatusOK, `{"status":"success","result":null}`, nil)
	res := a.Recognize(context.Background(), clip(t))
	assert.Equal(t, recognition.KindNoMatch, res.Kind)
	assert.Equal(t, recognition.NoMatches, res.Reason.Category)
}

func TestRecognizeServiceError(t *testing.T) {
	body := `{"status":"error","error":{"error_code":900,"error_message":"Wrong API token"}}`
	a := serve(t, http.StatusOK, body, nil)
	res := a.Recognize(context.Background(), clip(t))

	assert.Equal(t, recognition.KindOtherFailure, res.Kind)
	assert.Equal(t, 900, res.Reason.Code)
	assert.Equal(t, "Wrong API token", res.Reason.Message)
}

func TestRecognizeServerFailureIsConnectivity(t *testing.T) {
	a := serve(t, http.StatusBadGateway, `upstream down`, nil)
	res := a.Recognize(context.Background(), clip(t))
	assert.Equal(t, recognition.KindConnectivityFailure, res.Kind)
}

func TestRecognizeClientError(t *testing.T) {
	a := serve(t, http.StatusBadRequest, `{}`, nil)
	res := a.Recognize(context.Background(), clip(t))
	assert.Equal(t, recognition.KindOtherFailure, res.Kind)
	assert.Equal(t, http.StatusBadRequest, res.Reason.Code)
}

func TestRecognizeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := NewAudD(Config{Endpoint: url, Timeout: time.Second}, nil)
	res := a.Recognize(context.Background(), clip(t))
	assert.Equal(t, recognition.KindConnectivityFailure, res.Kind)
}

func TestRecognizeHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := serve(t, http.StatusOK, matchBody, func(*http.Request) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := a.Recognize(ctx, clip(t))
	assert.Equal(t, recognition.KindConnectivityFailure, res.Kind)
}

func TestRecognizeGarbage(t *testing.T) {
	a := serve(t, http.StatusOK, `<html>`, nil)
	res := a.Recognize(context.Background(), clip(t))
	assert.Equal(t, recognition.KindOtherFailure, res.Kind)
}
