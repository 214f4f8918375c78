package ports

import (
	"context"
	"encoding/json"
)

const (
	SkillRewriteScript  = "rewrite-script"
	SkillGenerateSlides = "generate-slides"
)

// SkillInvoker runs a named remote skill and returns its result payload.
type SkillInvoker interface {
	Invoke(ctx context.Context, skill string, params map[string]any) (json.RawMessage, error)
}
