package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestValidateInvestment(t *testing.T) {
	valid := primitive.NewObjectID().Hex()

	tests := []struct {
		name   string
		req    InvestmentRequest
		fields map[string]string
	}{
		{"valid", InvestmentRequest{InvestorID: valid, Amount: 10000}, nil},
		{"missing investor", InvestmentRequest{Amount: 10000}, map[string]string{"InvestorID": "InvestorID is required"}},
		{"bad investor", InvestmentRequest{InvestorID: "123", Amount: 10000}, map[string]string{"InvestorID": "Invalid ID format"}},
		{"missing amount", InvestmentRequest{InvestorID: valid}, map[string]string{"Amount": "Amount is required"}},
		{"negative amount", InvestmentRequest{InvestorID: valid, Amount: -5}, map[string]string{"Amount": "Amount must be greater than 0"}},
		{"fractional amount", InvestmentRequest{InvestorID: valid, Amount: 5000.5}, map[string]string{"Amount": "Amount must be a whole number"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateInvestment(&tt.req)
			if tt.fields == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.fields, errs.Map())
			assert.NotEmpty(t, errs.Error())
		})
	}
}
