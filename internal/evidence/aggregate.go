package evidence

import (
	"fmt"
	"sort"

	"github.com/ragline/ragline/internal/log"
)

// Branch is the outcome of one adapter call, fed into Aggregate.
// Err and Items are mutually exclusive: a failed branch carries no items,
// and an empty Items slice with a nil Err is a valid "no results" outcome.
type Branch struct {
	Source string // adapter name, e.g. "unstructured", "structured"
	Items  []Item // ranked results, ids unset
	Err    error  // typed retrieval failure, nil on success
}

// Bundle is the aggregated, deduplicated evidence for one request.
type Bundle struct {
	// Items in final prompt order with ids assigned ("e0", "e1", ...).
	Items []Item

	// Degraded lists the sources whose retrieval failed. Non-empty Degraded
	// with non-empty Items means partial grounding.
	Degraded []string

	// NoContext is set when no branch contributed any evidence, either
	// because all failed or all returned empty. Generation then proceeds
	// without citation instructions.
	NoContext bool
}

// IDs returns the set of assigned evidence ids, in order.
func (b Bundle) IDs() []string {
	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ID
	}
	return ids
}

// Lookup returns the item with the given id.
func (b Bundle) Lookup(id string) (Item, bool) {
	for _, it := range b.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Aggregator normalizes adapter outputs into a single evidence list.
type Aggregator struct {
	logger log.Logger
}

// NewAggregator creates an Aggregator. A nil logger disables logging.
func NewAggregator(logger log.Logger) *Aggregator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Aggregator{logger: logger}
}

// Aggregate merges branch results into one ordered, deduplicated bundle.
//
// Merge order: when every surviving item carries a relevance score, items
// are interleaved by score descending (stable across equal scores).
// Otherwise unstructured results come before structured ones, since
// narrative evidence typically anchors the answer. Duplicate provenance
// keeps the first occurrence only.
//
// A branch error never aborts aggregation: the source is recorded in
// Degraded and the remaining branches still contribute.
func (a *Aggregator) Aggregate(branches []Branch) Bundle {
	var bundle Bundle

	var merged []Item
	seen := make(map[string]struct{})
	allScored := true

	for _, br := range branches {
		if br.Err != nil {
			a.logger.Warn("retrieval branch failed",
				"source", br.Source,
				"error", br.Err,
			)
			bundle.Degraded = append(bundle.Degraded, br.Source)
			continue
		}
		for _, it := range br.Items {
			key := it.Provenance.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if !it.HasScore {
				allScored = false
			}
			merged = append(merged, it)
		}
	}

	if allScored && len(merged) > 1 {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Score > merged[j].Score
		})
	}

	for i := range merged {
		merged[i].ID = fmt.Sprintf("e%d", i)
	}

	bundle.Items = merged
	bundle.NoContext = len(merged) == 0

	a.logger.Debug("aggregated evidence",
		"items", len(bundle.Items),
		"degraded", bundle.Degraded,
		"no_context", bundle.NoContext,
	)

	return bundle
}
