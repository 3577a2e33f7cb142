package handler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/patyfb04/play-inventory/internal/adapter/handler/pb"
	"github.com/patyfb04/play-inventory/internal/core/domain"
	"github.com/patyfb04/play-inventory/internal/observability"
)

type GRPCHandler struct {
	grants     GrantService
	queries    QueryService
	reconciler Reconciler
	logger     observability.Logger
}

var _ pb.InventoryServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(grants GrantService, queries QueryService, reconciler Reconciler, logger observability.Logger) *GRPCHandler {
	return &GRPCHandler{
		grants:     grants,
		queries:    queries,
		reconciler: reconciler,
		logger:     logger,
	}
}

func (h *GRPCHandler) GrantItems(ctx context.Context, req *pb.GrantItemsRequest) (*pb.GrantItemsResponse, error) {
	if req.RequestId == "" {
		return nil, status.Error(codes.InvalidArgument, "request_id is required")
	}
	correlationID := req.CorrelationId
	if correlationID == "" {
		correlationID = req.RequestId
	}

	outcome, err := h.grants.Consume(ctx, domain.GrantItems{
		CatalogItemID: req.CatalogItemId,
		UserID:        req.UserId,
		Quantity:      int(req.Quantity),
		CorrelationID: correlationID,
		MessageID:     req.RequestId,
	})
	if err == nil {
		err = outcome.Err()
	}
	if err != nil {
		return nil, h.toStatus(err)
	}

	return &pb.GrantItemsResponse{
		Result:   string(outcome.Result),
		Quantity: int64(outcome.Record.Quantity),
	}, nil
}

func (h *GRPCHandler) ListItems(ctx context.Context, req *pb.ListItemsRequest) (*pb.ListItemsResponse, error) {
	var (
		views []domain.InventoryItemView
		err   error
	)
	if req.UserId == "" {
		views, err = h.queries.ListAll(ctx)
	} else {
		views, err = h.queries.ListForUser(ctx, req.UserId)
	}
	if err != nil {
		return nil, h.toStatus(err)
	}

	resp := &pb.ListItemsResponse{Items: make([]*pb.InventoryItem, 0, len(views))}
	for _, v := range views {
		resp.Items = append(resp.Items, &pb.InventoryItem{
			CatalogItemId: v.CatalogItemID,
			Name:          v.Name,
			Description:   v.Description,
			Quantity:      int64(v.Quantity),
			AcquiredDate:  v.AcquiredDate.Format(time.RFC3339),
		})
	}
	return resp, nil
}

func (h *GRPCHandler) Reconcile(ctx context.Context, _ *pb.ReconcileRequest) (*pb.ReconcileResponse, error) {
	report, err := h.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}

	resp := &pb.ReconcileResponse{
		Created:   report.Created,
		Updated:   report.Updated,
		Deleted:   report.Deleted,
		Unchanged: int64(report.Unchanged),
		Skipped:   report.Skipped,
	}
	if report.Reason != nil {
		resp.Reason = report.Reason.Error()
	}
	return resp, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnknownCatalogItem):
		return status.Error(codes.NotFound, "unknown catalog item")
	case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrPublishFailure):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	h.logger.Error("rpc failed", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}
