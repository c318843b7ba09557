package workflow

import "go.uber.org/zap"

// NewTransitionCatalogue wires the full transition set with its
// collaborators. Registration order is irrelevant; the engine orders
// applicable transitions by name at selection time.
func NewTransitionCatalogue(
	clients ClientRegistry,
	supplierRequests SupplierRequestStore,
	identities IdentityStore,
	agencies AgencyDirectory,
	resolver SupplierResolver,
	renewalEnabled bool,
	logger *zap.Logger,
) []Transition {
	return []Transition{
		NewValidatePatronTransition(clients, identities, agencies, logger),
		NewResolveSupplierTransition(resolver, supplierRequests, logger),
		NewPlaceAtSupplyingAgencyTransition(clients, identities, supplierRequests, agencies, logger),
		NewSupplierConfirmedTransition(supplierRequests),
		NewSupplierCancelledTransition(supplierRequests),
		NewPlaceAtPickupAgencyTransition(clients, identities, logger),
		NewPlaceAtBorrowingAgencyTransition(clients, logger),
		NewItemInTransitTransition(),
		NewItemReceivedTransition(),
		NewItemOnHoldShelfTransition(),
		NewCheckedOutToPatronTransition(clients, logger),
		NewExpeditedCheckoutTransition(clients, logger),
		NewRenewalTransition(clients, renewalEnabled, logger),
		NewReturnTransitTransition(),
		NewRequestCompletedTransition(),
		NewCancelRequestTransition(clients, supplierRequests, logger),
		NewFinaliseTransition(clients, supplierRequests, logger),
	}
}
