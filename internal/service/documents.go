package service

import (
	"context"

	"rentcar-backend/internal/logger"
)

type documentService struct{}

// NewDocumentService returns the document collaborator used when no generator is deployed.
// It records the request so invoices can be produced out of band.
func NewDocumentService() DocumentService {
	return &documentService{}
}

func (s *documentService) RequestDocuments(ctx context.Context, req DocumentRequest) error {
	logger.InfoContext(ctx, "Invoice and contract requested",
		"bookingID", req.BookingID,
		"bookingNumber", req.BookingNumber,
		"vehicleID", req.VehicleID,
		"start", req.Start,
		"end", req.End,
		"total", req.Price.TotalAmount.StringFixed(2),
		"online", req.Price.OnlineAmount.StringFixed(2),
		"cash", req.Price.CashAmount.StringFixed(2),
	)
	return nil
}
