package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

// Client is a typed wrapper around the KV gRPC service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client on an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, fields map[string]*structpb.Value) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	in := &structpb.Struct{Fields: fields}
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the record for key and whether it exists.
func (c *Client) Get(ctx context.Context, key string) (kv.Record, bool, error) {
	resp, err := c.invoke(ctx, "Get", map[string]*structpb.Value{"key": structpb.NewStringValue(key)})
	if err != nil {
		return kv.Record{}, false, err
	}
	if !boolField(resp, "found") {
		return kv.Record{}, false, nil
	}
	return recordFromStruct(resp), true, nil
}

// Find returns the keys starting with prefix.
func (c *Client) Find(ctx context.Context, prefix string) ([]string, error) {
	resp, err := c.invoke(ctx, "Find", map[string]*structpb.Value{"prefix": structpb.NewStringValue(prefix)})
	if err != nil {
		return nil, err
	}
	values := resp.GetFields()["keys"].GetListValue().GetValues()
	keys := make([]string, 0, len(values))
	for _, v := range values {
		keys = append(keys, v.GetStringValue())
	}
	return keys, nil
}

// Set stores value under key. The value must be representable as JSON.
func (c *Client) Set(ctx context.Context, key string, value any) (bool, error) {
	pv, err := toProtoValue(value)
	if err != nil {
		return false, err
	}
	resp, err := c.invoke(ctx, "Set", map[string]*structpb.Value{
		"key":   structpb.NewStringValue(key),
		"value": pv,
	})
	if err != nil {
		return false, err
	}
	return boolField(resp, "changed"), nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	resp, err := c.invoke(ctx, "Delete", map[string]*structpb.Value{"key": structpb.NewStringValue(key)})
	if err != nil {
		return false, err
	}
	return boolField(resp, "removed"), nil
}

// Notify asks the server to re-deliver the current record of key.
func (c *Client) Notify(ctx context.Context, key string) error {
	_, err := c.invoke(ctx, "Notify", map[string]*structpb.Value{"key": structpb.NewStringValue(key)})
	return err
}

// Reset drops all records and watchers on the server.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.invoke(ctx, "Reset", nil)
	return err
}

// Watch subscribes to target and calls fn for every record received until
// ctx is done or the stream fails. A cleanly closed stream returns nil.
func (c *Client) Watch(ctx context.Context, target string, opts kv.WatchOptions, fn func(kv.Record)) error {
	stream, err := c.cc.NewStream(ctx, &KVServiceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(watchRequestToStruct(watchRequest{Target: target, Options: opts})); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return fmt.Errorf("close watch request: %w", err)
	}

	for {
		msg, err := x.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(recordFromStruct(msg))
	}
}
