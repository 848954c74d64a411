package pricing

// PromptLength buckets a prompt by content size.
type PromptLength string

const (
	LengthShort  PromptLength = "short"
	LengthMedium PromptLength = "medium"
	LengthLong   PromptLength = "long"
)

// lengthThresholds holds the short/medium upper bounds in characters.
type lengthThresholds struct {
	short  int
	medium int
}

// Providers tokenize differently, so the character cutoffs differ.
// Unrecognized providers use the openai thresholds.
var providerThresholds = map[string]lengthThresholds{
	"openai":    {short: 1000, medium: 4000},
	"anthropic": {short: 800, medium: 3000},
	"google":    {short: 1200, medium: 5000},
}

var defaultThresholds = providerThresholds["openai"]

// ClassifyLength maps a character count to a prompt-length bucket using
// the provider's thresholds.
func ClassifyLength(charCount int, provider string) PromptLength {
	t, ok := providerThresholds[provider]
	if !ok {
		t = defaultThresholds
	}
	switch {
	case charCount <= t.short:
		return LengthShort
	case charCount <= t.medium:
		return LengthMedium
	default:
		return LengthLong
	}
}

// Calculator computes the total credit cost of a single invocation:
// the registry base cost plus the creator fee surcharge.
type Calculator struct {
	registry *Registry
}

// NewCalculator returns a calculator over the given registry.
func NewCalculator(registry *Registry) *Calculator {
	return &Calculator{registry: registry}
}

// ComputeCost returns base + floor(base * creatorFeePercent / 100).
// The fee truncates toward zero so a fractional fee never over-charges.
// Returns ErrModelNotFound for unknown model ids.
func (c *Calculator) ComputeCost(modelID string, length PromptLength, creatorFeePercent int) (int64, error) {
	cost, err := c.registry.Lookup(modelID)
	if err != nil {
		return 0, err
	}
	base := cost.Cost(length)
	return base + CreatorFee(base, creatorFeePercent), nil
}

// CreatorFee returns the creator's cut of a base cost: floor(base*pct/100).
func CreatorFee(base int64, percent int) int64 {
	if percent <= 0 {
		return 0
	}
	return base * int64(percent) / 100
}
