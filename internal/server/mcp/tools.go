package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

func (s *Server) handleRecognize(ctx context.Context, req *sdk.CallToolRequest, args RecognizeArgs) (*sdk.CallToolResult, RecognizeOutput, error) {
	if args.Audio == "" {
		return nil, RecognizeOutput{}, errors.New("audio is required")
	}
	data, err := base64.StdEncoding.DecodeString(args.Audio)
	if err != nil {
		return nil, RecognizeOutput{}, fmt.Errorf("invalid base64 audio: %w", err)
	}

	task, err := s.backend.RecognizeWAV(ctx, data)
	if err != nil {
		return nil, RecognizeOutput{}, fmt.Errorf("recognition failed: %w", err)
	}

	out := recognizeOutput(task)
	s.logger.Info("recognize_audio", zap.String("state", out.State), zap.Bool("matched", out.Matched))
	return nil, out, nil
}

func (s *Server) handleListLibrary(ctx context.Context, req *sdk.CallToolRequest, args ListLibraryArgs) (*sdk.CallToolResult, ListLibraryOutput, error) {
	entries, err := s.backend.Library()
	if err != nil {
		return nil, ListLibraryOutput{}, fmt.Errorf("failed to read library: %w", err)
	}
	if args.Limit > 0 && len(entries) > args.Limit {
		entries = entries[:args.Limit]
	}

	out := ListLibraryOutput{Tracks: make([]LibraryItem, 0, len(entries))}
	for _, e := range entries {
		out.Tracks = append(out.Tracks, libraryItem(e))
	}
	return nil, out, nil
}

func (s *Server) handleListQueue(ctx context.Context, req *sdk.CallToolRequest, args ListQueueArgs) (*sdk.CallToolResult, ListQueueOutput, error) {
	entries, err := s.backend.Queue()
	if err != nil {
		return nil, ListQueueOutput{}, fmt.Errorf("failed to read queue: %w", err)
	}

	out := ListQueueOutput{Entries: make([]QueueItem, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, queueItem(e))
	}
	return nil, out, nil
}
