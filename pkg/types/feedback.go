package types

// Thumb is a reader's rating of a summary
type Thumb string

const (
	ThumbUp   Thumb = "up"
	ThumbDown Thumb = "down"
)

// Value returns the boolean score forwarded to telemetry (1 for up, 0 for down)
func (t Thumb) Value() float64 {
	if t == ThumbUp {
		return 1
	}
	return 0
}

// Emoji returns the button glyph for the rating
func (t Thumb) Emoji() string {
	if t == ThumbUp {
		return "👍"
	}
	return "👎"
}

// ParseThumb converts callback payload text into a Thumb
func ParseThumb(s string) (Thumb, bool) {
	switch Thumb(s) {
	case ThumbUp, ThumbDown:
		return Thumb(s), true
	}
	return "", false
}
