package ledger

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
)

const DefaultWarnWindowDays = 3

// Classify puts an installment in an urgency bucket relative to asOf. Paid
// installments never alert.
func Classify(inst models.Installment, asOf models.Date, warnWindowDays int) models.AlertEntry {
	b := Breakdown(inst, asOf)
	entry := models.AlertEntry{
		InstallmentNumber:  inst.Number,
		DueDate:            inst.DueDate,
		DaysRemaining:      asOf.DaysUntil(inst.DueDate),
		OutstandingBalance: b.OutstandingBalance,
		Bucket:             models.AlertNone,
	}
	if b.Status != models.InstallmentPaid {
		switch d := entry.DaysRemaining; {
		case d < 0:
			entry.Bucket = models.AlertOverdue
		case d == 0:
			entry.Bucket = models.AlertDueToday
		case d <= warnWindowDays:
			entry.Bucket = models.AlertDueSoon
		}
	}
	entry.Urgency = entry.Bucket.Urgency()
	return entry
}

// CollectAlerts classifies every installment of every loan and returns the
// ones that alert, most urgent first and closest due date first within a
// bucket.
func CollectAlerts(clients []*models.Client, loansByClient map[uuid.UUID][]*models.Loan, asOf models.Date, warnWindowDays int) []models.AlertEntry {
	var alerts []models.AlertEntry
	for _, client := range clients {
		for _, loan := range loansByClient[client.ID] {
			for _, inst := range loan.Installments {
				entry := Classify(inst, asOf, warnWindowDays)
				if entry.Bucket == models.AlertNone {
					continue
				}
				entry.ClientID = client.ID
				entry.ClientName = client.Name
				entry.ClientPhone = client.Phone
				entry.LoanID = loan.ID
				alerts = append(alerts, entry)
			}
		}
	}

	slices.SortStableFunc(alerts, func(a, b models.AlertEntry) int {
		if a.Urgency != b.Urgency {
			return b.Urgency - a.Urgency
		}
		if a.DaysRemaining != b.DaysRemaining {
			return a.DaysRemaining - b.DaysRemaining
		}
		return strings.Compare(a.ClientName, b.ClientName)
	})
	return alerts
}

// AlertGroups splits alerts by bucket for notification views.
type AlertGroups struct {
	Overdue  []models.AlertEntry `json:"overdue"`
	DueToday []models.AlertEntry `json:"dueToday"`
	DueSoon  []models.AlertEntry `json:"dueSoon"`
}

func GroupAlerts(alerts []models.AlertEntry) AlertGroups {
	var g AlertGroups
	for _, a := range alerts {
		switch a.Bucket {
		case models.AlertOverdue:
			g.Overdue = append(g.Overdue, a)
		case models.AlertDueToday:
			g.DueToday = append(g.DueToday, a)
		case models.AlertDueSoon:
			g.DueSoon = append(g.DueSoon, a)
		}
	}
	return g
}

// Badge is the number of alerts across all buckets.
func (g AlertGroups) Badge() int {
	return len(g.Overdue) + len(g.DueToday) + len(g.DueSoon)
}
