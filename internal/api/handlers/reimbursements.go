package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viprahq/viprago/internal/api/dto"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/api/validation"
	"github.com/viprahq/viprago/internal/database/models"
	"github.com/viprahq/viprago/internal/notify"
	"github.com/viprahq/viprago/internal/rules"
	"github.com/viprahq/viprago/pkg/crypto"
	"gorm.io/gorm"
)

// payrollMonthLayout is the YYYY-MM bucket a claim lands in when approved.
const payrollMonthLayout = "2006-01"

type ReimbursementHandler struct {
	db        *gorm.DB
	logger    *slog.Logger
	encryptor *crypto.Encryptor
	notifier  *notify.Service
	uploadDir string
}

func NewReimbursementHandler(db *gorm.DB, logger *slog.Logger, encryptor *crypto.Encryptor, notifier *notify.Service, uploadDir string) *ReimbursementHandler {
	return &ReimbursementHandler{db: db, logger: logger, encryptor: encryptor, notifier: notifier, uploadDir: uploadDir}
}

// CreateClaimRequest carries a new reimbursement claim. BankDetail is
// encrypted before it ever reaches the database.
type CreateClaimRequest struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
	BankDetail  string `json:"bank_detail,omitempty"`
}

func (r CreateClaimRequest) Validate() map[string]string {
	errs := make(map[string]string)
	if !validation.IsValidClaimCategory(r.Category) {
		errs["category"] = "Category must be one of: travel, meals, equipment, training, other"
	}
	if r.AmountCents <= 0 {
		errs["amount_cents"] = "Amount must be positive"
	}
	if r.Currency != "" && len(r.Currency) != 3 {
		errs["currency"] = "Currency must be a 3-letter code"
	}
	return errs
}

// ClaimResponse represents a reimbursement claim in API responses. The
// encrypted bank detail is never returned.
type ClaimResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	Category        string `json:"category"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Description     string `json:"description,omitempty"`
	ReceiptPath     string `json:"receipt_path,omitempty"`
	Status          string `json:"status"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	PayrollMonth    string `json:"payroll_month,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func claimToResponse(c *models.ReimbursementClaim) ClaimResponse {
	resp := ClaimResponse{
		ID:              c.ID.String(),
		UserID:          c.UserID.String(),
		Category:        c.Category,
		AmountCents:     c.AmountCents,
		Currency:        c.Currency,
		Description:     c.Description,
		ReceiptPath:     c.ReceiptPath,
		Status:          string(c.Status),
		RejectionReason: c.RejectionReason,
		PayrollMonth:    c.PayrollMonth,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
	if c.ApprovedByID != nil {
		resp.ApprovedBy = c.ApprovedByID.String()
	}
	if c.ApprovedAt != nil {
		resp.ApprovedAt = c.ApprovedAt.Format(time.RFC3339)
	}
	return resp
}

// Create handles POST /api/v1/reimbursements
func (h *ReimbursementHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	claim := models.ReimbursementClaim{
		OrganizationID: principal.OrganizationID,
		UserID:         principal.UserID,
		Category:       req.Category,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		Description:    req.Description,
		Status:         models.ClaimStatusPending,
	}

	if req.BankDetail != "" {
		encrypted, err := h.encryptor.Encrypt([]byte(req.BankDetail))
		if err != nil {
			h.logger.Error("encrypting bank detail failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create claim"})
			return
		}
		claim.EncryptedBankDetail = encrypted
	}

	if err := h.db.Create(&claim).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create claim"})
		return
	}

	writeJSON(w, http.StatusCreated, claimToResponse(&claim))
}

// UploadReceipt handles POST /api/v1/reimbursements/:id/receipt. Only the
// claim's owner may attach a receipt, and only while the claim is pending.
func (h *ReimbursementHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	claim, ok := h.loadClaim(w, r, principal)
	if !ok {
		return
	}
	if claim.UserID != principal.UserID {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Only the claim owner may upload a receipt"})
		return
	}
	if claim.Status != models.ClaimStatusPending {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Claim has already been reviewed"})
		return
	}

	file, header, err := r.FormFile("receipt")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Missing receipt file"})
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	name := fmt.Sprintf("%s%s", claim.ID, ext)
	destPath := filepath.Join(h.uploadDir, "receipts", name)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to store receipt"})
		return
	}
	dest, err := os.Create(destPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to store receipt"})
		return
	}
	defer dest.Close()
	if _, err := io.Copy(dest, file); err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to store receipt"})
		return
	}

	if err := h.db.Model(claim).Update("receipt_path", destPath).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to store receipt"})
		return
	}
	claim.ReceiptPath = destPath

	writeJSON(w, http.StatusOK, claimToResponse(claim))
}

// List handles GET /api/v1/reimbursements. Reviewers see the whole
// organization; members only their own claims.
func (h *ReimbursementHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	query := h.db.Model(&models.ReimbursementClaim{}).
		Where("organization_id = ?", principal.OrganizationID)

	if !rules.CanReview(principal.Role) {
		query = query.Where("user_id = ?", principal.UserID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if month := r.URL.Query().Get("payroll_month"); month != "" {
		query = query.Where("payroll_month = ?", month)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to count claims"})
		return
	}

	var claims []models.ReimbursementClaim
	if err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.PerPage).
		Find(&claims).Error; err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list claims"})
		return
	}

	response := make([]ClaimResponse, len(claims))
	for i := range claims {
		response[i] = claimToResponse(&claims[i])
	}

	totalPages := int(total) / pagination.PerPage
	if int(total)%pagination.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       response,
		Total:      total,
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: totalPages,
	})
}

// Get handles GET /api/v1/reimbursements/:id
func (h *ReimbursementHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	claim, ok := h.loadClaim(w, r, principal)
	if !ok {
		return
	}
	if claim.UserID != principal.UserID && !rules.CanReview(principal.Role) {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Claim not found"})
		return
	}

	writeJSON(w, http.StatusOK, claimToResponse(claim))
}

// Approve handles POST /api/v1/reimbursements/:id/approve. The status
// flip is a conditional update on status='Pending': of two racing
// reviewers exactly one wins, the other gets a conflict.
func (h *ReimbursementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	if !rules.CanReview(principal.Role) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Only managers and admins may review claims"})
		return
	}

	claim, ok := h.loadClaim(w, r, principal)
	if !ok {
		return
	}

	now := time.Now().UTC()
	result := h.db.Model(&models.ReimbursementClaim{}).
		Where("id = ? AND status = ?", claim.ID, models.ClaimStatusPending).
		Updates(map[string]interface{}{
			"status":         models.ClaimStatusApproved,
			"approved_by_id": principal.UserID,
			"approved_at":    now,
			"payroll_month":  now.Format(payrollMonthLayout),
		})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to approve claim"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Claim has already been reviewed"})
		return
	}

	claim.Status = models.ClaimStatusApproved
	claim.ApprovedByID = &principal.UserID
	claim.ApprovedAt = &now
	claim.PayrollMonth = now.Format(payrollMonthLayout)

	h.notifyReviewed(r, claim, principal.UserID, "approved")
	writeJSON(w, http.StatusOK, claimToResponse(claim))
}

// RejectClaimRequest carries the reviewer's reason for rejection.
type RejectClaimRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /api/v1/reimbursements/:id/reject. Same conditional
// update as Approve; a rejected claim joins no payroll month.
func (h *ReimbursementHandler) Reject(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	if !rules.CanReview(principal.Role) {
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "Only managers and admins may review claims"})
		return
	}

	var req RejectClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "A rejection reason is required"})
		return
	}

	claim, ok := h.loadClaim(w, r, principal)
	if !ok {
		return
	}

	now := time.Now().UTC()
	result := h.db.Model(&models.ReimbursementClaim{}).
		Where("id = ? AND status = ?", claim.ID, models.ClaimStatusPending).
		Updates(map[string]interface{}{
			"status":           models.ClaimStatusRejected,
			"approved_by_id":   principal.UserID,
			"approved_at":      now,
			"rejection_reason": strings.TrimSpace(req.Reason),
		})
	if result.Error != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to reject claim"})
		return
	}
	if result.RowsAffected == 0 {
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "Claim has already been reviewed"})
		return
	}

	claim.Status = models.ClaimStatusRejected
	claim.ApprovedByID = &principal.UserID
	claim.ApprovedAt = &now
	claim.RejectionReason = strings.TrimSpace(req.Reason)

	h.notifyReviewed(r, claim, principal.UserID, "rejected")
	writeJSON(w, http.StatusOK, claimToResponse(claim))
}

func (h *ReimbursementHandler) notifyReviewed(r *http.Request, claim *models.ReimbursementClaim, reviewerID uuid.UUID, outcome string) {
	err := h.notifier.Create(r.Context(), &models.Notification{
		OrganizationID:  claim.OrganizationID,
		RecipientUserID: claim.UserID,
		SenderUserID:    &reviewerID,
		Type:            models.NotifClaimReviewed,
		Title:           fmt.Sprintf("Reimbursement claim %s", outcome),
		Message:         fmt.Sprintf("Your %s claim for %d %s was %s.", claim.Category, claim.AmountCents, claim.Currency, outcome),
		ResourceType:    "claim",
		ResourceID:      &claim.ID,
	})
	if err != nil {
		h.logger.Error("claim review notification failed", "claim_id", claim.ID, "error", err)
	}
}

func (h *ReimbursementHandler) loadClaim(w http.ResponseWriter, r *http.Request, principal rules.Principal) (*models.ReimbursementClaim, bool) {
	claimID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid claim ID"})
		return nil, false
	}

	var claim models.ReimbursementClaim
	if err := h.db.
		Where("id = ? AND organization_id = ?", claimID, principal.OrganizationID).
		First(&claim).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Claim not found"})
			return nil, false
		}
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to load claim"})
		return nil, false
	}
	return &claim, true
}
