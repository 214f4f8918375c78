package repositories

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}
