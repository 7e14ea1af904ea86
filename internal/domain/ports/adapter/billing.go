package adapter

import "context"

// CreditGateway is the billing collaborator hook. RefundOnDemand returns one
// unit of on-demand credit to the user after a confirmed job failure.
type CreditGateway interface {
	RefundOnDemand(ctx context.Context, userID string) error
}
