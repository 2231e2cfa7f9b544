package model

import "github.com/sells-group/purchase-predictor/internal/scalar"

// Dataset column names. The source header must carry these exactly
// (compared under Unicode NFC).
const (
	ColumnID             = "ID"
	ColumnTitle          = "Title"
	ColumnDescription    = "Description"
	ColumnOwner          = "Owner"
	ColumnBasePrice      = "Base Price"
	ColumnTotalReviews   = "Total Reviews"
	ColumnAverageStars   = "Average Stars"
	ColumnAvailability   = "Availability"
	ColumnMorePurchased  = "Plus Achetés" // training target, never a feature
	ColumnPricePerReview = "price_per_review"
	ColumnPriceStarRatio = "price_star_ratio"
	ColumnAvailabilityN  = "availability_numeric"
)

// RequiredColumns lists the columns every dataset must provide.
var RequiredColumns = []string{
	ColumnID,
	ColumnTitle,
	ColumnDescription,
	ColumnOwner,
	ColumnBasePrice,
	ColumnTotalReviews,
	ColumnAverageStars,
	ColumnAvailability,
}

// Service is one row of the source dataset. Services are loaded once and
// never written back.
type Service struct {
	ID           int64
	Title        string
	Description  string
	Owner        string
	BasePrice    float64
	TotalReviews int64
	AverageStars float64

	// Availability keeps the source representation: a boolean when the
	// dataset stores True/False, an integer when it stores 0/1.
	Availability scalar.Value
}

// RankedService is one entry of the most-purchased ranking.
type RankedService struct {
	ServiceID          int64        `json:"Service ID"`
	Title              string       `json:"Title"`
	Description        string       `json:"Description"`
	BasePrice          float64      `json:"Base Price"`
	TotalReviews       int64        `json:"Total Reviews"`
	AverageStars       float64      `json:"Average Stars"`
	Availability       scalar.Value `json:"Availability"`
	PredictedPurchases float64      `json:"Predicted Purchases"`
}

// Rank pairs a service with its predicted purchase count.
func Rank(svc Service, predicted float64) RankedService {
	return RankedService{
		ServiceID:          svc.ID,
		Title:              svc.Title,
		Description:        svc.Description,
		BasePrice:          svc.BasePrice,
		TotalReviews:       svc.TotalReviews,
		AverageStars:       svc.AverageStars,
		Availability:       svc.Availability,
		PredictedPurchases: predicted,
	}
}
