package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/heysubinoy/pyazwatch/pkg/kv"
)

// toProtoValue converts an arbitrary stored value. Types structpb does not
// know directly are passed through their JSON form.
func toProtoValue(v any) (*structpb.Value, error) {
	if pv, err := structpb.NewValue(v); err == nil {
		return pv, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return structpb.NewValue(generic)
}

func recordToStruct(rec kv.Record) (*structpb.Struct, error) {
	value, err := toProtoValue(rec.Value)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"key":      structpb.NewStringValue(rec.Key),
		"value":    value,
		"revision": structpb.NewNumberValue(float64(rec.Revision)),
	}}, nil
}

func recordFromStruct(msg *structpb.Struct) kv.Record {
	fields := msg.GetFields()
	rec := kv.Record{
		Key:      fields["key"].GetStringValue(),
		Revision: uint64(fields["revision"].GetNumberValue()),
	}
	if v, ok := fields["value"]; ok {
		rec.Value = v.AsInterface()
	}
	return rec
}

func watchRequestToStruct(req watchRequest) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"target":     structpb.NewStringValue(req.Target),
		"range":      structpb.NewBoolValue(req.Options.Range),
		"no_initial": structpb.NewBoolValue(req.Options.NoInitial),
		"id":         structpb.NewStringValue(req.Options.ID),
	}
	if req.Options.HaveRevision != nil {
		fields["have_revision"] = structpb.NewNumberValue(float64(*req.Options.HaveRevision))
	}
	return &structpb.Struct{Fields: fields}
}

func watchRequestFromStruct(msg *structpb.Struct) watchRequest {
	fields := msg.GetFields()
	req := watchRequest{
		Target: fields["target"].GetStringValue(),
		Options: kv.WatchOptions{
			ID:        fields["id"].GetStringValue(),
			Range:     fields["range"].GetBoolValue(),
			NoInitial: fields["no_initial"].GetBoolValue(),
		},
	}
	if v, ok := fields["have_revision"]; ok {
		req.Options.HaveRevision = kv.Revision(uint64(v.GetNumberValue()))
	}
	return req
}

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func boolField(msg *structpb.Struct, name string) bool {
	return msg.GetFields()[name].GetBoolValue()
}
