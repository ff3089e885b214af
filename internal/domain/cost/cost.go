// Package cost defines domain types for per-turn cost and token accounting.
package cost

// Usage holds the cost and token counters for one agent step or one turn.
// Token categories are summed independently; there is no derived weighting.
type Usage struct {
	CostUSD         float64 `json:"cost_usd"`
	TokensIn        int64   `json:"tokens_in"`
	TokensOut       int64   `json:"tokens_out"`
	TokensReasoning int64   `json:"tokens_reasoning"`
	CacheRead       int64   `json:"cache_read"`
	CacheWrite      int64   `json:"cache_write"`
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	u.CostUSD += o.CostUSD
	u.TokensIn += o.TokensIn
	u.TokensOut += o.TokensOut
	u.TokensReasoning += o.TokensReasoning
	u.CacheRead += o.CacheRead
	u.CacheWrite += o.CacheWrite
	return u
}

// TotalTokens returns the sum of all token categories.
func (u Usage) TotalTokens() int64 {
	return u.TokensIn + u.TokensOut + u.TokensReasoning + u.CacheRead + u.CacheWrite
}

// IsZero reports whether no cost or tokens have been recorded.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Sum aggregates the usage of all steps collected during one turn.
func Sum(steps []Usage) Usage {
	var total Usage
	for _, s := range steps {
		total = total.Add(s)
	}
	return total
}
