package lifecycle

import "beskarliquidator/internal/domain"

// rejectRequest stamps pr as the rejected terminal outcome for err and
// returns it, ready to persist via FinalizeRequest.
func rejectRequest(pr *domain.ProcessedRequest, err error) *domain.ProcessedRequest {
	pr.Outcome = domain.OutcomeRejected
	pr.ErrorKind = domain.KindOf(err)
	pr.ErrorMsg = err.Error()
	return pr
}

// acceptRequest stamps pr as accepted against loanID and returns the
// ApplicationResult to hand back to the caller.
func acceptRequest(pr *domain.ProcessedRequest, loanID string) *ApplicationResult {
	pr.Outcome = domain.OutcomeAccepted
	pr.ResultLoanID = loanID
	return &ApplicationResult{RequestID: pr.RequestID, LoanID: loanID, Accepted: true}
}

// acceptTopUp stamps pr as accepted and returns the TopUpResult.
func acceptTopUp(pr *domain.ProcessedRequest, loanID, collateral string) *TopUpResult {
	pr.Outcome = domain.OutcomeAccepted
	pr.ResultLoanID = loanID
	return &TopUpResult{RequestID: pr.RequestID, LoanID: loanID, Collateral: collateral, Accepted: true}
}

// finalizeErr turns a finalized ProcessedRequest's rejection, if any, back
// into the *domain.Error the caller originally failed with.
func finalizeErr(pr *domain.ProcessedRequest) error {
	if pr.Outcome == domain.OutcomeRejected {
		return &domain.Error{Kind: pr.ErrorKind, Msg: pr.ErrorMsg}
	}
	return nil
}

// replayApplication reconstructs the result of a previously-processed
// loan-application request for a caller that retried with the same
// requestID — no side effects occur on replay.
func replayApplication(existing *domain.ProcessedRequest) (*ApplicationResult, error) {
	if existing.Outcome == domain.OutcomeAccepted {
		return &ApplicationResult{RequestID: existing.RequestID, LoanID: existing.ResultLoanID, Accepted: true},
			domain.Duplicate("request already processed")
	}
	return nil, domain.Duplicate("request already processed: " + existing.ErrorMsg)
}

// replayTopUp is the top-up analogue of replayApplication.
func replayTopUp(existing *domain.ProcessedRequest) (*TopUpResult, error) {
	if existing.Outcome == domain.OutcomeAccepted {
		return &TopUpResult{RequestID: existing.RequestID, LoanID: existing.ResultLoanID, Accepted: true},
			domain.Duplicate("request already processed")
	}
	return nil, domain.Duplicate("request already processed: " + existing.ErrorMsg)
}
