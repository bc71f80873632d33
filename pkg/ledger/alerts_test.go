package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	due := "2024-01-31"
	cases := []struct {
		name      string
		paid      string
		asOf      string
		bucket    models.AlertBucket
		remaining int
	}{
		{"overdue", "0", "2024-02-02", models.AlertOverdue, -2},
		{"due today", "0", "2024-01-31", models.AlertDueToday, 0},
		{"due tomorrow", "0", "2024-01-30", models.AlertDueSoon, 1},
		{"edge of window", "0", "2024-01-28", models.AlertDueSoon, 3},
		{"outside window", "0", "2024-01-27", models.AlertNone, 4},
		{"paid on due date", "800", "2024-01-31", models.AlertNone, 0},
		{"partially paid overdue", "100", "2024-02-10", models.AlertOverdue, -10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := Classify(installment("800", tc.paid, due), models.MustParseDate(tc.asOf), DefaultWarnWindowDays)
			assert.Equal(t, tc.bucket, entry.Bucket)
			assert.Equal(t, tc.bucket.Urgency(), entry.Urgency)
			assert.Equal(t, tc.remaining, entry.DaysRemaining)
		})
	}
}

func TestClassify_CustomWindow(t *testing.T) {
	inst := installment("800", "0", "2024-01-31")
	asOf := models.MustParseDate("2024-01-24")

	assert.Equal(t, models.AlertNone, Classify(inst, asOf, 3).Bucket)
	assert.Equal(t, models.AlertDueSoon, Classify(inst, asOf, 7).Bucket)
	assert.Equal(t, models.AlertNone, Classify(inst, asOf, 0).Bucket)
}

func TestCollectAlertsAndGroups(t *testing.T) {
	asOf := models.MustParseDate("2024-01-31")
	ana := &models.Client{ID: uuid.New(), Name: "Ana", Phone: "111"}
	bia := &models.Client{ID: uuid.New(), Name: "Bia", Phone: "222"}
	loans := map[uuid.UUID][]*models.Loan{
		ana.ID: {loanWith(ana.ID, "1000",
			installment("800", "0", "2024-01-31"),
			installment("800", "0", "2024-02-02"),
		)},
		bia.ID: {
			loanWith(bia.ID, "100", installment("130", "0", "2024-01-20")),
			loanWith(bia.ID, "100", installment("130", "130", "2024-02-01")),
			loanWith(bia.ID, "100", installment("130", "0", "2024-03-20")),
		},
	}

	alerts := CollectAlerts([]*models.Client{ana, bia}, loans, asOf, DefaultWarnWindowDays)

	require.Len(t, alerts, 3)
	assert.Equal(t, models.AlertOverdue, alerts[0].Bucket)
	assert.Equal(t, bia.ID, alerts[0].ClientID)
	assert.Equal(t, "222", alerts[0].ClientPhone)
	assert.Equal(t, models.AlertDueToday, alerts[1].Bucket)
	assert.Equal(t, 1, alerts[1].InstallmentNumber)
	assert.Equal(t, models.AlertDueSoon, alerts[2].Bucket)
	assert.Equal(t, 2, alerts[2].InstallmentNumber)

	groups := GroupAlerts(alerts)
	assert.Len(t, groups.Overdue, 1)
	assert.Len(t, groups.DueToday, 1)
	assert.Len(t, groups.DueSoon, 1)
	assert.Equal(t, 3, groups.Badge())
}
