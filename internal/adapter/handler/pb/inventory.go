// Package pb declares the InventoryService gRPC contract. Messages are plain
// structs carried with the JSON codec registered in codec.go.
package pb

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "inventory.v1.InventoryService"

	GrantItemsFullMethod = "/" + ServiceName + "/GrantItems"
	ListItemsFullMethod  = "/" + ServiceName + "/ListItems"
	ReconcileFullMethod  = "/" + ServiceName + "/Reconcile"
)

type GrantItemsRequest struct {
	RequestId     string `json:"request_id"`
	UserId        string `json:"user_id"`
	CatalogItemId string `json:"catalog_item_id"`
	Quantity      int64  `json:"quantity"`
	CorrelationId string `json:"correlation_id"`
}

type GrantItemsResponse struct {
	Result   string `json:"result"`
	Quantity int64  `json:"quantity"`
}

type ListItemsRequest struct {
	UserId string `json:"user_id"`
}

type InventoryItem struct {
	CatalogItemId string `json:"catalog_item_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Quantity      int64  `json:"quantity"`
	AcquiredDate  string `json:"acquired_date"`
}

type ListItemsResponse struct {
	Items []*InventoryItem `json:"items"`
}

type ReconcileRequest struct{}

type ReconcileResponse struct {
	Created   []string `json:"created"`
	Updated   []string `json:"updated"`
	Deleted   []string `json:"deleted"`
	Unchanged int64    `json:"unchanged"`
	Skipped   bool     `json:"skipped"`
	Reason    string   `json:"reason,omitempty"`
}

type InventoryServiceServer interface {
	GrantItems(context.Context, *GrantItemsRequest) (*GrantItemsResponse, error)
	ListItems(context.Context, *ListItemsRequest) (*ListItemsResponse, error)
	Reconcile(context.Context, *ReconcileRequest) (*ReconcileResponse, error)
}

func RegisterInventoryServiceServer(s grpc.ServiceRegistrar, srv InventoryServiceServer) {
	s.RegisterService(&InventoryService_ServiceDesc, srv)
}

var InventoryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GrantItems", Handler: grantItemsHandler},
		{MethodName: "ListItems", Handler: listItemsHandler},
		{MethodName: "Reconcile", Handler: reconcileHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func grantItemsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GrantItemsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).GrantItems(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GrantItemsFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).GrantItems(ctx, req.(*GrantItemsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listItemsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListItemsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).ListItems(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListItemsFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).ListItems(ctx, req.(*ListItemsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reconcileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReconcileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServiceServer).Reconcile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ReconcileFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServiceServer).Reconcile(ctx, req.(*ReconcileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type InventoryServiceClient interface {
	GrantItems(ctx context.Context, in *GrantItemsRequest, opts ...grpc.CallOption) (*GrantItemsResponse, error)
	ListItems(ctx context.Context, in *ListItemsRequest, opts ...grpc.CallOption) (*ListItemsResponse, error)
	Reconcile(ctx context.Context, in *ReconcileRequest, opts ...grpc.CallOption) (*ReconcileResponse, error)
}

type inventoryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewInventoryServiceClient(cc grpc.ClientConnInterface) InventoryServiceClient {
	return &inventoryServiceClient{cc}
}

func (c *inventoryServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *inventoryServiceClient) GrantItems(ctx context.Context, in *GrantItemsRequest, opts ...grpc.CallOption) (*GrantItemsResponse, error) {
	out := new(GrantItemsResponse)
	if err := c.invoke(ctx, GrantItemsFullMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryServiceClient) ListItems(ctx context.Context, in *ListItemsRequest, opts ...grpc.CallOption) (*ListItemsResponse, error) {
	out := new(ListItemsResponse)
	if err := c.invoke(ctx, ListItemsFullMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *inventoryServiceClient) Reconcile(ctx context.Context, in *ReconcileRequest, opts ...grpc.CallOption) (*ReconcileResponse, error) {
	out := new(ReconcileResponse)
	if err := c.invoke(ctx, ReconcileFullMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
