package types

import "database/sql/driver"

type BusinessDetails struct {
	PAN       string  `json:"pan" validate:"required,len=10"`
	GSTNumber *string `json:"gst_number,omitempty" validate:"omitempty,len=15"`
	Address   string  `json:"address" validate:"required,max=300"`
}

func (b BusinessDetails) Value() (driver.Value, error) {
	return marshalJSON(b)
}

func (b *BusinessDetails) Scan(value interface{}) error {
	if value == nil {
		*b = BusinessDetails{}
		return nil
	}
	return scanJSON(value, b)
}

// BankDetails is where payouts for a seller are sent.
type BankDetails struct {
	AccountNumber string `json:"account_number" validate:"required,min=6,max=34"`
	IFSCCode      string `json:"ifsc_code" validate:"required,len=11"`
	BankName      string `json:"bank_name" validate:"required,max=120"`
}

func (b BankDetails) Value() (driver.Value, error) {
	return marshalJSON(b)
}

func (b *BankDetails) Scan(value interface{}) error {
	if value == nil {
		*b = BankDetails{}
		return nil
	}
	return scanJSON(value, b)
}
