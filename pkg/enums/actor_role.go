package enums

// ActorRole identifies who requested an order status change.
type ActorRole string

const (
	ActorBuyer  ActorRole = "buyer"
	ActorSeller ActorRole = "seller"
	ActorAdmin  ActorRole = "admin"
	ActorSystem ActorRole = "system"
)

var actorRoles = newSet("actor role", ActorBuyer, ActorSeller, ActorAdmin, ActorSystem)

func (a ActorRole) String() string { return string(a) }

func (a ActorRole) IsValid() bool { return actorRoles.has(a) }
