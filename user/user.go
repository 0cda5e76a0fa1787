package user

// User describes a GemBooth user
type User struct {
	ID    string `json:"id" gorm:"primaryKey"`     // Corresponds to Stripe's Customer ID
	Email string `json:"email" gorm:"uniqueIndex"` // User's email address
}
