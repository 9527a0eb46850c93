package api

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
	"github.com/heysubinoy/pyazwatch/pkg/log"
)

// Options configures the HTTP and gRPC front ends.
type Options struct {
	Logger log.Logger
	// WatchBuffer is the number of undelivered records a remote watcher
	// may lag behind before its stream is closed.
	WatchBuffer int
}

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.Nop{}
	}
	return o.Logger
}

// GRPCServer implements KVServiceServer.
// It wraps a kv.Store and exposes it over gRPC.
type GRPCServer struct {
	Store kv.Store
	opts  Options
}

var _ KVServiceServer = (*GRPCServer)(nil)

// NewGRPCServer creates a new gRPC server with the given store.
func NewGRPCServer(store kv.Store, opts Options) *GRPCServer {
	return &GRPCServer{
		Store: store,
		opts:  opts,
	}
}

// Get retrieves a record by key.
func (s *GRPCServer) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key := stringField(req, "key")
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	rec, found := s.Store.Get(key)
	if !found {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"found": structpb.NewBoolValue(false),
		}}, nil
	}
	resp, err := recordToStruct(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp.Fields["found"] = structpb.NewBoolValue(true)
	return resp, nil
}

// Find lists keys by prefix.
func (s *GRPCServer) Find(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	keys := s.Store.Find(stringField(req, "prefix"))

	list := make([]*structpb.Value, 0, len(keys))
	for _, key := range keys {
		list = append(list, structpb.NewStringValue(key))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"keys": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}, nil
}

// Set stores a value.
func (s *GRPCServer) Set(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key := stringField(req, "key")
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	changed := s.Store.Set(key, req.GetFields()["value"].AsInterface())
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"changed": structpb.NewBoolValue(changed),
	}}, nil
}

// Delete removes a key from the store.
func (s *GRPCServer) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key := stringField(req, "key")
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}

	removed := s.Store.Delete(key)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"removed": structpb.NewBoolValue(removed),
	}}, nil
}

// Notify re-delivers the current record of a key to its watchers.
func (s *GRPCServer) Notify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key := stringField(req, "key")
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "key is required")
	}
	if err := s.Store.Notify(key); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{}, nil
}

// Reset drops all records and watchers.
func (s *GRPCServer) Reset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.Store.Reset()
	return &structpb.Struct{}, nil
}

// Watch streams changes for a key or prefix until the client goes away.
func (s *GRPCServer) Watch(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	wr := watchRequestFromStruct(req)
	if !wr.valid() {
		return status.Error(codes.InvalidArgument, "target is required")
	}

	ws := newWatchStream(s.opts.WatchBuffer)
	off, err := s.Store.On(wr.Target, wr.Options, ws.deliver)
	if err != nil {
		return toStatus(err)
	}
	defer func() {
		if err := off(); err != nil {
			s.opts.logger().Log(log.LevelDebug, "Watch stream unsubscribe failed", log.Fields{"target": wr.Target, "error": err.Error()})
		}
	}()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case <-ws.overflow:
			s.opts.logger().Log(log.LevelWarn, "Watch stream fell behind", log.Fields{"target": wr.Target, "watcher_id": wr.Options.ID})
			return status.Error(codes.ResourceExhausted, "watcher fell behind")
		case rec := <-ws.events:
			msg, err := recordToStruct(rec)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, kv.ErrUnknownKey):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, kv.ErrInvalidCallback):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, kv.ErrDuplicateSubscriber):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, kv.ErrUnknownSubscriber):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
