// Package recognizer implements recognition.Recognizer on top of the AudD
// music recognition API.
package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/recognition"
)

// DefaultEndpoint is the public AudD API
const DefaultEndpoint = "https://api.audd.io/"

// Config holds AudD client settings
type Config struct {
	Endpoint string
	APIToken string
	Timeout  time.Duration

	// ReturnServices lists the metadata providers AudD should include,
	// e.g. apple_music, spotify, deezer, musicbrainz
	ReturnServices []string
}

// AudD submits audio samples to the AudD API
type AudD struct {
	client   *resty.Client
	token    string
	services string
	logger   *zap.Logger
	now      func() time.Time
}

// NewAudD creates an AudD client
func NewAudD(cfg Config, logger *zap.Logger) *AudD {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &AudD{
		client:   client,
		token:    cfg.APIToken,
		services: strings.Join(cfg.ReturnServices, ","),
		logger:   logger,
		now:      time.Now,
	}
}

// Recognize encodes the clip as WAV and submits it
func (a *AudD) Recognize(ctx context.Context, clip audio.Clip) recognition.Result {
	data, err := audio.EncodeWAV(clip)
	if err != nil {
		return recognition.OtherFailure(0, fmt.Sprintf("failed to encode sample: %v", err))
	}
	return a.RecognizeWAV(ctx, data)
}

// RecognizeWAV submits an already encoded audio file
func (a *AudD) RecognizeWAV(ctx context.Context, data []byte) recognition.Result {
	form := map[string]string{}
	if a.token != "" {
		form["api_token"] = a.token
	}
	if a.services != "" {
		form["return"] = a.services
	}

	var body response
	resp, err := a.client.R().
		SetContext(ctx).
		SetMultipartFormData(form).
		SetFileReader("file", "sample.wav", bytes.NewReader(data)).
		SetResult(&body).
		ForceContentType("application/json").
		Post("")
	if err != nil {
		if isConnectivity(err) {
			return recognition.ConnectivityFailure(err)
		}
		return recognition.OtherFailure(0, err.Error())
	}

	if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
		return recognition.ConnectivityFailure(fmt.Errorf("service returned %s", resp.Status()))
	}
	if resp.IsError() {
		return recognition.OtherFailure(resp.StatusCode(), resp.Status())
	}

	return a.interpret(body)
}

func (a *AudD) interpret(body response) recognition.Result {
	switch body.Status {
	case "success":
		if body.Result == nil {
			return recognition.NoMatch()
		}
		track := body.Result.track()
		track.RecognizedAt = a.now()
		return recognition.Matched(track)

	case "error":
		if body.Error == nil {
			return recognition.OtherFailure(0, "unspecified service error")
		}
		a.logger.Debug("audd error",
			zap.Int("code", body.Error.Code),
			zap.String("message", body.Error.Message))
		return recognition.OtherFailure(body.Error.Code, body.Error.Message)

	default:
		return recognition.OtherFailure(0, fmt.Sprintf("unexpected status %q", body.Status))
	}
}

// isConnectivity reports whether a transport error means the service was
// not reachable
func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
