package ledger

import (
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ClientDirectory lists the clients whose name contains query, ignoring case.
// Clients holding any loan that is not fully paid come first; within each
// group names sort alphabetically.
func ClientDirectory(clients []*models.Client, loansByClient map[uuid.UUID][]*models.Loan, query string, asOf models.Date) []models.ClientListing {
	query = strings.ToLower(strings.TrimSpace(query))

	listings := make([]models.ClientListing, 0, len(clients))
	for _, c := range clients {
		if query != "" && !strings.Contains(strings.ToLower(c.Name), query) {
			continue
		}
		loans := loansByClient[c.ID]
		listing := models.ClientListing{Client: *c, LoanCount: len(loans)}
		for _, loan := range loans {
			if SummarizeLoan(loan, asOf).Status != models.LoanPaid {
				listing.HasActiveLoan = true
				break
			}
		}
		listings = append(listings, listing)
	}

	names := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(listings, func(a, b models.ClientListing) int {
		if a.HasActiveLoan != b.HasActiveLoan {
			if a.HasActiveLoan {
				return -1
			}
			return 1
		}
		return names.CompareString(a.Name, b.Name)
	})
	return listings
}
