package resolution

import "github.com/openlibraryenvironment/dcb-service-sub000/internal/models"

// eligibility returns an empty string for an eligible candidate, otherwise a
// short reason used in debug logging.
func eligibility(item *models.HoldingsItem, agency *models.Agency, excludedItems map[string]bool) string {
	switch {
	case agency == nil:
		return "unknown agency"
	case !agency.IsSupplying:
		return "agency not supplying"
	case !item.Circulating:
		return "non-circulating item type"
	case item.AvailableCopies <= 0:
		return "no available copies"
	case excludedItems[item.LocalItemID]:
		return "previously tried supplier"
	}
	return ""
}
