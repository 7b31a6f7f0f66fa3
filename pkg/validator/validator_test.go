package validator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type paymentInput struct {
	InvoiceID uuid.UUID       `validate:"uuid_required"`
	Amount    decimal.Decimal `validate:"gt=0"`
	Discount  decimal.Decimal `validate:"gte=0"`
	Method    string          `validate:"required,oneof=cash transfer"`
}

func TestValidateStructOK(t *testing.T) {
	errs := ValidateStruct(paymentInput{
		InvoiceID: uuid.New(),
		Amount:    decimal.NewFromInt(10),
		Discount:  decimal.Zero,
		Method:    "cash",
	})
	assert.Nil(t, errs)
}

func TestValidateStructCollectsFailures(t *testing.T) {
	errs := ValidateStruct(paymentInput{
		Amount:   decimal.NewFromInt(-1),
		Discount: decimal.NewFromInt(-2),
		Method:   "cheque",
	})
	assert.Len(t, errs, 4)
	assert.Equal(t, "InvoiceID", errs[0].Field)
	assert.Equal(t, "uuid_required", errs[0].Tag)
	assert.Contains(t, Describe(errs), "Method failed oneof=cash transfer")
}
