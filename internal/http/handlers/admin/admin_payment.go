package admin

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paymind-next/internal/http/response"
	"github.com/paymind-next/internal/models"
	"github.com/paymind-next/internal/repository"
	"github.com/paymind-next/internal/service"

	"github.com/gin-gonic/gin"
)

const adminPaymentExportBatchSize = 500

// GetAdminPayments 获取结算记录列表
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter, err := buildAdminPaymentFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	payments, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// ExportAdminPayments 导出结算记录 CSV
func (h *Handler) ExportAdminPayments(c *gin.Context) {
	filter, err := buildAdminPaymentFilter(c, 1, adminPaymentExportBatchSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	payments, _, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		return
	}

	filename := fmt.Sprintf("payments_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write([]string{
		"id",
		"user_id",
		"session_id",
		"method",
		"status",
		"amount",
		"currency",
		"transaction_hash",
		"escrow_status",
		"escrow_ref",
		"created_at",
		"completed_at",
	}); err != nil {
		requestLog(c).Errorw("admin_payment_export_header_write_failed", "error", err)
		return
	}

	page := 1
	for {
		if len(payments) > 0 {
			if err := writeAdminPaymentCSVRows(writer, payments); err != nil {
				requestLog(c).Errorw("admin_payment_export_rows_write_failed", "page", page, "error", err)
				return
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				requestLog(c).Errorw("admin_payment_export_flush_failed", "page", page, "error", err)
				return
			}
		}
		if len(payments) < adminPaymentExportBatchSize {
			break
		}
		page++
		filter.Page = page
		payments, _, err = h.PaymentService.ListPayments(filter)
		if err != nil {
			requestLog(c).Errorw("admin_payment_export_batch_fetch_failed", "page", page, "error", err)
			return
		}
	}
}

// GetAdminPayment 获取结算记录详情，附带托管与分成信息
func (h *Handler) GetAdminPayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "error.payment_id_invalid", nil)
		return
	}

	payment, err := h.PaymentService.GetPayment(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodeNotFound, "error.payment_not_found", nil)
		default:
			respondError(c, response.CodeInternal, "error.payment_fetch_failed", err)
		}
		return
	}

	detail := gin.H{"payment": payment}
	if payment.EscrowRef != "" {
		if escrow, escrowErr := h.EscrowService.GetByPaymentID(payment.ID); escrowErr == nil {
			detail["escrow"] = escrow
		}
	}
	if commissions, commErr := h.CommissionService.ListByPaymentID(payment.ID); commErr == nil && len(commissions) > 0 {
		detail["commissions"] = commissions
	}
	response.Success(c, detail)
}

func buildAdminPaymentFilter(c *gin.Context, page, pageSize int) (repository.PaymentListFilter, error) {
	var userID uint
	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			return repository.PaymentListFilter{}, errors.New("invalid user_id")
		}
		userID = uint(parsed)
	}

	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		return repository.PaymentListFilter{}, err
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		return repository.PaymentListFilter{}, err
	}

	return repository.PaymentListFilter{
		Page:        page,
		PageSize:    pageSize,
		UserID:      userID,
		Method:      strings.TrimSpace(c.Query("method")),
		Status:      strings.TrimSpace(c.Query("status")),
		Currency:    strings.ToUpper(strings.TrimSpace(c.Query("currency"))),
		ProviderRef: strings.TrimSpace(c.Query("provider_ref")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	}, nil
}

func writeAdminPaymentCSVRows(writer *csv.Writer, payments []models.Payment) error {
	for _, payment := range payments {
		if err := writer.Write([]string{
			strconv.FormatUint(uint64(payment.ID), 10),
			strconv.FormatUint(uint64(payment.UserID), 10),
			payment.SessionID,
			payment.Method,
			payment.Status,
			payment.Amount.String(),
			payment.Currency,
			payment.TransactionHash,
			payment.EscrowStatus,
			payment.EscrowRef,
			payment.CreatedAt.Format(time.RFC3339),
			formatTimeNullable(payment.CompletedAt),
		}); err != nil {
			return err
		}
	}
	return nil
}
