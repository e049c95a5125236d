package syncer

import (
	"fmt"

	"qcsync/internal/client"
	"qcsync/internal/table"
)

// Strategy is the merge strategy applied to a product's increments.
// Tags are a closed set: unknown values are rejected when the remote schema
// policies are bound into plans, not when a sync runs.
type Strategy string

const (
	// StrategyByGroup splits the increment by the group column and merges
	// each group into its own accumulated file.
	StrategyByGroup Strategy = "by_group"
	// StrategyByFile merges each extracted file into the accumulated file at
	// the mirrored relative path.
	StrategyByFile Strategy = "by_file"
	// StrategyDirectMove moves extracted files into place without merging.
	StrategyDirectMove Strategy = "direct_move"
)

// ParseStrategy maps a policy tag from the data API onto a Strategy.
func ParseStrategy(tag string) (Strategy, error) {
	switch tag {
	case "update_by_group", "by_group":
		return StrategyByGroup, nil
	case "update_by_file", "by_file":
		return StrategyByFile, nil
	case "move", "direct_move":
		return StrategyDirectMove, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", tag)
	}
}

// Plan is the validated, immutable per-product sync plan derived from the
// remote schema policy.
type Plan struct {
	Product    string
	Merge      table.MergePolicy
	ParseDates []string
	Group      string
	Strategy   Strategy
}

// BuildPlans validates the remote schema policies and binds them into plans.
// Any invalid policy fails the whole load so bad configuration surfaces at
// startup.
func BuildPlans(policies map[string]client.ProductPolicy) (map[string]Plan, error) {
	plans := make(map[string]Plan, len(policies))
	for product, policy := range policies {
		strategy, err := ParseStrategy(policy.Strategy)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", product, err)
		}

		keep := table.KeepFirst
		if policy.Keep != "" {
			keep, err = table.ParseKeep(policy.Keep)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", product, err)
			}
		}

		if strategy != StrategyDirectMove && len(policy.DedupColumns) == 0 {
			return nil, fmt.Errorf("product %s: dedup columns are required for merge strategies", product)
		}
		if strategy == StrategyByGroup && policy.Group == "" {
			return nil, fmt.Errorf("product %s: group column is required for by-group merges", product)
		}

		plans[product] = Plan{
			Product:    product,
			Merge:      table.MergePolicy{Keys: policy.DedupColumns, Keep: keep},
			ParseDates: policy.ParseDates,
			Group:      policy.Group,
			Strategy:   strategy,
		}
	}
	return plans, nil
}
