package preflight

import (
	"context"
	"fmt"
	"time"
)

// EmbedderTimeout bounds the check embedding.
const EmbedderTimeout = 15 * time.Second

// CheckEmbedder embeds a fixed string and checks the vector size.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
		Details:  c.embedder.ModelName(),
	}

	ctx, cancel := context.WithTimeout(ctx, EmbedderTimeout)
	defer cancel()

	start := time.Now()
	vec, err := c.embedder.Embed(ctx, "docrag doctor check")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", c.embedder.ModelName(), err)
		return result
	}
	if dims := c.embedder.Dimensions(); dims > 0 && len(vec) != dims {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned %d dims, expected %d",
			c.embedder.ModelName(), len(vec), c.embedder.Dimensions())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims) in %s",
		c.embedder.ModelName(), len(vec), time.Since(start).Round(time.Millisecond))
	return result
}
