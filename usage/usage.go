package usage

import (
	"sort"
	"time"
)

// Action is the feature action key gated by the entitlement check. Each
// Action maps to exactly one counter column on Record and one allowance key
// in the tier catalog; this table is the single source of truth for that
// mapping, never duplicate it at a call site.
type Action string

const (
	ActionPhoto          Action = "photo"
	ActionGIF            Action = "gif"
	ActionFitCheck       Action = "fitcheck"
	ActionCoDrawing      Action = "codrawing"
	ActionPastForward    Action = "pastforward"
	ActionGeneratedImage Action = "generated_image"
	ActionPixshop        Action = "pixshop"
)

// Record holds the counters for one user for one billing period. For a
// given user there is at most one Record whose [PeriodStart, PeriodEnd)
// window contains now. Counters only ever go up within a period (deleting
// content does not refund quota); a new period gets a new Record.
type Record struct {
	ID                  string    `json:"id" gorm:"primaryKey"`
	UserID              string    `json:"userId" gorm:"not null;index"`
	PeriodStart         time.Time `json:"periodStart" gorm:"not null;index"`
	PeriodEnd           time.Time `json:"periodEnd" gorm:"not null;index"`
	PhotosUsed          int64     `json:"photosUsed" gorm:"not null;default:0"`
	GifsUsed            int64     `json:"gifsUsed" gorm:"not null;default:0"`
	FitcheckUsed        int64     `json:"fitcheckUsed" gorm:"not null;default:0"`
	CodrawingUsed       int64     `json:"codrawingUsed" gorm:"not null;default:0"`
	PastforwardUsed     int64     `json:"pastforwardUsed" gorm:"not null;default:0"`
	GeneratedImagesUsed int64     `json:"generatedImagesUsed" gorm:"not null;default:0"`
	PixshopUsed         int64     `json:"pixshopUsed" gorm:"not null;default:0"`
}

type counter struct {
	column  string
	display string
	get     func(*Record) int64
	set     func(*Record, int64)
}

var counters = map[Action]counter{
	ActionPhoto: {
		column:  "photos_used",
		display: "photos",
		get:     func(r *Record) int64 { return r.PhotosUsed },
		set:     func(r *Record, v int64) { r.PhotosUsed = v },
	},
	ActionGIF: {
		column:  "gifs_used",
		display: "GIFs",
		get:     func(r *Record) int64 { return r.GifsUsed },
		set:     func(r *Record, v int64) { r.GifsUsed = v },
	},
	ActionFitCheck: {
		column:  "fitcheck_used",
		display: "fit checks",
		get:     func(r *Record) int64 { return r.FitcheckUsed },
		set:     func(r *Record, v int64) { r.FitcheckUsed = v },
	},
	ActionCoDrawing: {
		column:  "codrawing_used",
		display: "co-drawings",
		get:     func(r *Record) int64 { return r.CodrawingUsed },
		set:     func(r *Record, v int64) { r.CodrawingUsed = v },
	},
	ActionPastForward: {
		column:  "pastforward_used",
		display: "Past Forward sessions",
		get:     func(r *Record) int64 { return r.PastforwardUsed },
		set:     func(r *Record, v int64) { r.PastforwardUsed = v },
	},
	ActionGeneratedImage: {
		column:  "generated_images_used",
		display: "generated images",
		get:     func(r *Record) int64 { return r.GeneratedImagesUsed },
		set:     func(r *Record, v int64) { r.GeneratedImagesUsed = v },
	},
	ActionPixshop: {
		column:  "pixshop_used",
		display: "Pixshop edits",
		get:     func(r *Record) int64 { return r.PixshopUsed },
		set:     func(r *Record, v int64) { r.PixshopUsed = v },
	},
}

// Known reports if the action key is in the recognized mapping. An unknown
// key indicates a caller bug and must be denied, not crashed on.
func Known(action Action) bool {
	_, ok := counters[action]
	return ok
}

// Actions returns the recognized action keys in lexical order, so API
// responses built from it are stable between calls.
func Actions() []Action {
	keys := make([]Action, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// DisplayName returns the human readable form of an action for quota
// messages (e.g. "photos").
func DisplayName(action Action) string {
	c, ok := counters[action]
	if !ok {
		return string(action)
	}
	return c.display
}

// Used returns the consumed count for the given action. A nil Record (no
// usage row for the current period yet) counts as zero for every action.
func (r *Record) Used(action Action) int64 {
	if r == nil {
		return 0
	}
	c, ok := counters[action]
	if !ok {
		return 0
	}
	return c.get(r)
}

// DefaultPeriod returns the calendar month window containing ref. It is
// used for users who have no subscription row carrying billing period
// bounds.
func DefaultPeriod(ref time.Time) (time.Time, time.Time) {
	ref = ref.UTC()
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
