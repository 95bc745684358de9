package models

// Requests for the recommendation HTTP endpoints. Defined in domain for
// consistency and reuse.

type ProduceRequest struct {
	Instrument        string   `json:"instrument" query:"instrument" validate:"required,min=1,max=12"`
	ApplyDeliberation bool     `json:"apply_deliberation" query:"apply_deliberation"`
	PortfolioValue    float64  `json:"portfolio_value" default:"100000" validate:"gte=0"`
	Holdings          []string `json:"holdings" validate:"max=100"`
}

type HistoryRequest struct {
	Instrument string `query:"instrument" json:"instrument" validate:"required,min=1,max=12"`
	Limit      int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

type ScanRequest struct {
	Instruments       []string `json:"instruments" validate:"required,min=1,max=50,dive,min=1,max=12"`
	ApplyDeliberation bool     `json:"apply_deliberation"`
	PortfolioValue    float64  `json:"portfolio_value" default:"100000" validate:"gte=0"`
}
