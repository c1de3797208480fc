package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/emmett/earworm/internal/output"
	"github.com/emmett/earworm/internal/recognition"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "earworm.v1.Recognition"

// watchBuffer is the number of transitions a slow Watch client may lag behind
const watchBuffer = 32

// RecognitionServer is the server API of the Recognition service. Tasks are
// sent as structs shaped like the JSON output of the CLI.
type RecognitionServer interface {
	// Recognize identifies the music in a WAV file
	Recognize(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	// Listen starts a microphone session and returns immediately
	Listen(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// Cancel stops the running microphone session
	Cancel(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Watch streams every task transition until the client goes away
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

// RegisterRecognitionServer registers srv with s
func RegisterRecognitionServer(s grpc.ServiceRegistrar, srv RecognitionServer) {
	s.RegisterService(&RecognitionServiceDesc, srv)
}

// RecognitionServiceDesc describes the Recognition service
var RecognitionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecognitionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: recognizeHandler},
		{MethodName: "Listen", Handler: listenHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognitionServer).Recognize(ctx, req.(*wrapperspb.BytesValue))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Recognize"}, call)
}

func listenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognitionServer).Listen(ctx, req.(*emptypb.Empty))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Listen"}, call)
}

func cancelHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognitionServer).Cancel(ctx, req.(*emptypb.Empty))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Cancel"}, call)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RecognitionServer).Watch(in, stream)
}

type recognitionService struct {
	// base is the context sessions started by Listen run under
	base    context.Context
	backend Backend
	logger  *zap.Logger
}

func newRecognitionService(base context.Context, backend Backend, logger *zap.Logger) *recognitionService {
	return &recognitionService{base: base, backend: backend, logger: logger}
}

func (s *recognitionService) Recognize(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "audio is required")
	}
	task, err := s.backend.RecognizeWAV(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return taskStruct(task)
}

func (s *recognitionService) Listen(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	task, err := s.backend.StartListening(s.base)
	if err != nil {
		return nil, toStatus(err)
	}
	return taskStruct(task)
}

func (s *recognitionService) Cancel(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.backend.Cancel(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *recognitionService) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	tasks, unsubscribe := s.backend.Subscribe(watchBuffer)
	defer unsubscribe()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case task, ok := <-tasks:
			if !ok {
				return nil
			}
			msg, err := taskStruct(task)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				s.logger.Debug("watch client gone", zap.Error(err))
				return err
			}
		}
	}
}

// taskStruct converts a task into its JSON record as a protobuf struct
func taskStruct(task recognition.Task) (*structpb.Struct, error) {
	data, err := json.Marshal(output.NewTaskRecord(task))
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode task: %v", err))
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode task: %v", err))
	}
	return msg, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, recognition.ErrSessionActive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, recognition.ErrNoActiveSession):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
