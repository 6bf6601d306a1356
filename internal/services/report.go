package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"delivery-system/internal/authz"
	"delivery-system/internal/repositories"
	apperrors "delivery-system/pkg/errors"
)

type ReportServiceInterface interface {
	ExportDeliveries(ctx context.Context, identity authz.Identity, from, to time.Time) (*excelize.File, error)
}

type ReportService struct {
	reportRepo repositories.ReportRepositoryInterface
	resolver   *authz.Resolver
	logger     *zap.Logger
}

func NewReportService(reportRepo repositories.ReportRepositoryInterface, resolver *authz.Resolver, logger *zap.Logger) ReportServiceInterface {
	return &ReportService{reportRepo: reportRepo, resolver: resolver, logger: logger}
}

// ExportDeliveries builds an XLSX sheet of completed deliveries in the
// caller's scope for the given period.
func (s *ReportService) ExportDeliveries(ctx context.Context, identity authz.Identity, from, to time.Time) (*excelize.File, error) {
	if !identity.IsOperator() && !identity.IsManager() {
		return nil, apperrors.ErrForbidden
	}
	scope, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, apperrors.Internal("failed to resolve scope", err)
	}
	if scope.IsEmpty() {
		return nil, apperrors.ErrForbidden
	}
	if to.Before(from) {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "report period end precedes its start")
	}

	archives, err := s.reportRepo.ListArchives(ctx, scope, from, to)
	if err != nil {
		s.logger.Error("delivery report query failed", zap.Error(err))
		return nil, apperrors.Internal("failed to build delivery report", err)
	}

	f := excelize.NewFile()
	sheet := "Deliveries"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Order ID", "Driver ID", "Hub ID", "City ID", "Total", "Delivered At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, a := range archives {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), a.OrderID)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), a.DriverID)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), a.HubID)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), a.CityID)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), a.Total)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), a.DeliveredAt.Format(time.RFC3339))
	}

	return f, nil
}
