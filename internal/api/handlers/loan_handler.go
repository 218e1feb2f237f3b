package handlers

import (
	"net/http"
	"time"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/lifecycle"
	"beskarliquidator/pkg/utils"
)

// LoanHandler serves the three HTTP routes the core exposes: loan
// applications, collateral top-ups, and a read-only loan listing.
type LoanHandler struct {
	engine *lifecycle.Engine
	log    *utils.Logger
}

// NewLoanHandler constructs a LoanHandler against engine.
func NewLoanHandler(engine *lifecycle.Engine, log *utils.Logger) *LoanHandler {
	return &LoanHandler{engine: engine, log: log.WithComponent("api")}
}

type applicationRequest struct {
	RequestID  string `json:"requestId"`
	LoanID     string `json:"loanId"`
	BorrowerID string `json:"borrowerId"`
	Amount     string `json:"amount"`
}

type applicationResponse struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Accepted  bool   `json:"accepted"`
}

// PostLoanApplication handles POST /loan-applications.
func (h *LoanHandler) PostLoanApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.Validationf(err, "malformed request body"))
		return
	}

	result, err := h.engine.SubmitApplication(r.Context(), req.RequestID, req.LoanID, req.BorrowerID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, applicationResponse{
		RequestID: result.RequestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Accepted:  result.Accepted,
	})
}

type topUpRequest struct {
	RequestID  string `json:"requestId"`
	LoanID     string `json:"loanId"`
	BorrowerID string `json:"borrowerId"`
	Amount     string `json:"amount"`
}

type topUpResponse struct {
	RequestID  string `json:"requestId"`
	Timestamp  string `json:"timestamp"`
	Accepted   bool   `json:"accepted"`
	Collateral string `json:"collateral,omitempty"`
}

// PostCollateralTopUp handles POST /collateral-top-ups.
func (h *LoanHandler) PostCollateralTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, domain.Validationf(err, "malformed request body"))
		return
	}

	result, err := h.engine.SubmitTopUp(r.Context(), req.RequestID, req.LoanID, req.BorrowerID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, topUpResponse{
		RequestID:  result.RequestID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Accepted:   result.Accepted,
		Collateral: result.Collateral,
	})
}

type loanSnapshot struct {
	LoanID              string `json:"loanId"`
	BorrowerID          string `json:"borrowerId"`
	Principal           string `json:"principal"`
	Collateral          string `json:"collateral"`
	Status              string `json:"status"`
	CollateralSold      string `json:"collateralSold"`
	ProceedsGC          string `json:"proceedsGc"`
	OutstandingBalance  string `json:"outstandingBalance"`
	RemainingCollateral string `json:"remainingCollateral"`
	CreatedAt           string `json:"createdAt"`
	UpdatedAt           string `json:"updatedAt"`
}

// GetLoans handles GET /loans. An optional ?status= query param narrows the
// snapshot to one lifecycle status; omitted, it returns every loan.
func (h *LoanHandler) GetLoans(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))

	loans, err := h.engine.ListLoans(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]loanSnapshot, 0, len(loans))
	for _, l := range loans {
		out = append(out, loanSnapshot{
			LoanID:              l.LoanID,
			BorrowerID:          l.BorrowerID,
			Principal:           l.Principal.String(),
			Collateral:          l.Collateral.String(),
			Status:              string(l.Status),
			CollateralSold:      l.CollateralSold.String(),
			ProceedsGC:          l.ProceedsGC.String(),
			OutstandingBalance:  l.OutstandingBalance.String(),
			RemainingCollateral: l.RemainingCollateral.String(),
			CreatedAt:           l.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:           l.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
