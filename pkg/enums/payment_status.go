package enums

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
)

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }
