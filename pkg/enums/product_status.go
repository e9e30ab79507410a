package enums

// ProductStatus is the moderation state of a listing. Only approved
// products can be added to a cart or bought.
type ProductStatus string

const (
	ProductStatusPending  ProductStatus = "pending"
	ProductStatusApproved ProductStatus = "approved"
	ProductStatusRejected ProductStatus = "rejected"
)

var productStatuses = newSet("product status", ProductStatusPending, ProductStatusApproved, ProductStatusRejected)

func (p ProductStatus) String() string { return string(p) }

func (p ProductStatus) IsValid() bool { return productStatuses.has(p) }
