package validators

type InvestmentRequest struct {
	InvestorID string  `json:"investor_id" validate:"required,object_id"`
	Amount     float64 `json:"amount" validate:"required,gt=0,whole_amount"`
}

func ValidateInvestment(req *InvestmentRequest) ValidationErrors {
	return ValidateStruct(req)
}
