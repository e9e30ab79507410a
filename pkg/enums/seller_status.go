package enums

// SellerStatus is the onboarding state of a seller account.
type SellerStatus string

const (
	SellerStatusPending   SellerStatus = "pending"
	SellerStatusApproved  SellerStatus = "approved"
	SellerStatusRejected  SellerStatus = "rejected"
	SellerStatusSuspended SellerStatus = "suspended"
)

var sellerStatuses = newSet("seller status",
	SellerStatusPending,
	SellerStatusApproved,
	SellerStatusRejected,
	SellerStatusSuspended,
)

func (s SellerStatus) String() string { return string(s) }

func (s SellerStatus) IsValid() bool { return sellerStatuses.has(s) }

func ParseSellerStatus(value string) (SellerStatus, error) {
	return sellerStatuses.parse(value)
}
