package gallery

import (
	"time"

	"github.com/zllovesuki/gembooth/usage"
)

// Photo is one transformed webcam shot or upload. The image bytes live in
// object storage; we only track metadata and ownership.
type Photo struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	UserID    string       `json:"userId" gorm:"not null;index"`
	Mode      usage.Action `json:"mode" gorm:"not null"` // the transformation applied, doubles as the gated action key
	Caption   string       `json:"caption"`
	ObjectKey string       `json:"objectKey" gorm:"not null"` // key in the storage bucket
	CreatedAt time.Time    `json:"createdAt" gorm:"index"`
}

// GIF is an animation assembled from booth photos.
type GIF struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"userId" gorm:"not null;index"`
	ObjectKey  string    `json:"objectKey" gorm:"not null"`
	FrameCount int       `json:"frameCount"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
}
