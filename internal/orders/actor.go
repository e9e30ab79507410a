package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

// Actor identifies who is acting on an order.
type Actor struct {
	UserID     *uuid.UUID
	Role       enums.ActorRole
	GuestEmail string
}

// BuyerActor is an authenticated buyer.
func BuyerActor(userID uuid.UUID) Actor {
	return Actor{UserID: &userID, Role: enums.ActorBuyer}
}

// AdminActor is an authenticated platform admin.
func AdminActor(userID uuid.UUID) Actor {
	return Actor{UserID: &userID, Role: enums.ActorAdmin}
}

// SellerActor is the user behind an approved seller account.
func SellerActor(userID uuid.UUID) Actor {
	return Actor{UserID: &userID, Role: enums.ActorSeller}
}

// GuestActor is an unauthenticated caller proving ownership with the order email.
func GuestActor(email string) Actor {
	return Actor{Role: enums.ActorBuyer, GuestEmail: email}
}

// SystemActor is used for webhooks and background jobs.
func SystemActor() Actor {
	return Actor{Role: enums.ActorSystem}
}

func (a Actor) outboxRef() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// CheckAccess enforces that the actor may read or act on the order as its buyer.
// Admins and the system pass; buyers must own the order; guest orders require the
// matching guest email.
func CheckAccess(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorAdmin, enums.ActorSystem:
		return nil
	case enums.ActorBuyer:
		if order.BuyerID != nil {
			if actor.UserID != nil && *actor.UserID == *order.BuyerID {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
		}
		if order.GuestInfo.Matches(actor.GuestEmail) {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "guest email does not match order")
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to access order")
}
