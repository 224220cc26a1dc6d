package services

import "github.com/tourdesk/ledger-backend/internal/models"

// ComputeLedger derives the paid total, remaining balance and status of a booking.
// FAILED payments do not count towards the total. remaining may go negative on
// overpayment. A set override wins over the derived status.
func ComputeLedger(totalCost models.Money, payments []models.Payment, override *models.PaymentStatus) models.Ledger {
	var paid models.Money
	for _, p := range payments {
		if p.CountsTowardsTotal() {
			paid += p.Amount
		}
	}

	status := models.PaymentStatusPending
	switch {
	case paid > 0 && paid >= totalCost:
		status = models.PaymentStatusPaid
	case paid > 0:
		status = models.PaymentStatusPartial
	}
	if override != nil {
		status = *override
	}

	return models.Ledger{
		TotalPaid: paid,
		Remaining: totalCost - paid,
		Status:    status,
	}
}

// recomputeLedger refreshes the derived fields of b from its own payments
func recomputeLedger(b *models.Booking) models.Ledger {
	l := ComputeLedger(b.TotalCost, b.Payments, b.StatusOverride)
	b.ApplyLedger(l)
	return l
}
