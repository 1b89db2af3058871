package labd

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// LabServiceClient calls LabService methods over a client connection.
type LabServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewLabServiceClient(cc grpc.ClientConnInterface) *LabServiceClient {
	return &LabServiceClient{cc: cc}
}

// Call invokes method with a request built from fields.
func (c *LabServiceClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+LabServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
