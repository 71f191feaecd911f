package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/orderlink/be-plan-amendments/internal/logger"
	"github.com/orderlink/be-plan-amendments/internal/metrics"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// RollupService computes revised order totals from the baseline plan and the
// effective amendments. Rollups are recomputed on every request; only the
// read-only baseline plan lines are cached, with a bounded TTL, so an
// amendment decision is always made against current ledger state.
type RollupService struct {
	plans      PlanSource
	hierarchy  HierarchyDirectory
	amendments AmendmentStore
	planCache  *expirable.LRU[string, []*repository.PlanLine]
	metrics    *metrics.Metrics
	log        *logger.Logger
}

// NewRollupService creates a new RollupService. cacheSize 0 disables the
// baseline cache entirely.
func NewRollupService(
	plans PlanSource,
	hierarchy HierarchyDirectory,
	amendments AmendmentStore,
	cacheSize int,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	log *logger.Logger,
) *RollupService {
	var cache *expirable.LRU[string, []*repository.PlanLine]
	if cacheSize > 0 {
		cache = expirable.NewLRU[string, []*repository.PlanLine](cacheSize, nil, cacheTTL)
	}
	return &RollupService{
		plans:      plans,
		hierarchy:  hierarchy,
		amendments: amendments,
		planCache:  cache,
		metrics:    m,
		log:        log,
	}
}

// Scope narrows a rollup. Zero value means the whole week. At most one field
// should be set; the narrowest set field wins.
type Scope struct {
	StoreID           string
	AreaManagerID     string
	RegionalManagerID string
}

// CategoryRollup is the per-category slice of a store rollup.
type CategoryRollup struct {
	Category       string `json:"category"`
	BaselineQty    int    `json:"baseline_qty"`
	RevisedQty     int    `json:"revised_qty"`
	AmendmentCount int    `json:"amendment_count"`
}

// StoreRollup is the revised order position of one store for the week.
type StoreRollup struct {
	StoreID             string           `json:"store_id"`
	StoreCode           string           `json:"store_code"`
	StoreName           string           `json:"store_name"`
	AreaManagerID       string           `json:"area_manager_id"`
	AreaManagerName     string           `json:"area_manager_name"`
	RegionalManagerID   string           `json:"regional_manager_id"`
	RegionalManagerName string           `json:"regional_manager_name"`
	LineCount           int              `json:"line_count"`
	BaselineOrderQty    int              `json:"baseline_order_qty"`
	BaselineAddOnsQty   int              `json:"baseline_add_ons_qty"`
	BaselineTotalQty    int              `json:"baseline_total_qty"`
	RevisedTotalQty     int              `json:"revised_total_qty"`
	QtyDelta            int              `json:"qty_delta"`
	AmendmentCount      int              `json:"amendment_count"`
	PendingCount        int              `json:"pending_count"`
	Categories          []CategoryRollup `json:"categories"`

	categories map[string]*CategoryRollup
}

// ManagerGroup aggregates the stores under one area or regional manager.
type ManagerGroup struct {
	ManagerID            string   `json:"manager_id"`
	ManagerName          string   `json:"manager_name"`
	StoreIDs             []string `json:"store_ids"`
	BaselineTotalQty     int      `json:"baseline_total_qty"`
	RevisedTotalQty      int      `json:"revised_total_qty"`
	TotalQtyDelta        int      `json:"total_qty_delta"`
	TotalAmendments      int      `json:"total_amendments"`
	PendingAmendments    int      `json:"pending_amendments"`
	StoresWithAmendments int      `json:"stores_with_amendments"`
}

// Finding kinds emitted in rollup diagnostics.
const (
	FindingDuplicateEffective = "duplicate_effective"
	FindingUnresolvedStore    = "unresolved_store"
)

// Finding is a data anomaly surfaced alongside a best-effort rollup rather
// than failing it.
type Finding struct {
	Kind          string `json:"kind"`
	StoreID       string `json:"store_id"`
	StockCode     string `json:"stock_code,omitempty"`
	WeekReference string `json:"week_reference"`
	Message       string `json:"message"`
}

// RollupResult is a complete on-demand rollup for a week and scope.
type RollupResult struct {
	WeekReference     string          `json:"week_reference"`
	Stores            []*StoreRollup  `json:"stores"`
	AreaGroups        []*ManagerGroup `json:"area_groups"`
	RegionalGroups    []*ManagerGroup `json:"regional_groups"`
	BaselineTotalQty  int             `json:"baseline_total_qty"`
	RevisedTotalQty   int             `json:"revised_total_qty"`
	TotalQtyDelta     int             `json:"total_qty_delta"`
	TotalAmendments   int             `json:"total_amendments"`
	PendingAmendments int             `json:"pending_amendments"`
	UnresolvedLines   int             `json:"unresolved_lines"`
	Findings          []Finding       `json:"findings"`
	ComputedAt        time.Time       `json:"computed_at"`
}

// InvalidateWeek drops the cached baseline for a week. Called when a week's
// plan is re-published.
func (s *RollupService) InvalidateWeek(weekRef string) {
	if s.planCache != nil {
		s.planCache.Remove(weekRef)
	}
}

// Rollup recomputes the revised totals for a week, narrowed by scope.
func (s *RollupService) Rollup(ctx context.Context, weekRef string, scope Scope) (*RollupResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRollup(time.Since(start).Seconds())
	}()

	if _, err := s.plans.GetWeek(ctx, weekRef); err != nil {
		return nil, err
	}

	nodes, err := s.hierarchy.ListStores(ctx)
	if err != nil {
		return nil, err
	}
	nodeByID := make(map[string]*repository.StoreNode, len(nodes))
	for _, n := range nodes {
		nodeByID[n.StoreID] = n
	}
	scoped := scopeStores(nodes, scope)

	lines, err := s.linesForWeek(ctx, weekRef)
	if err != nil {
		return nil, err
	}

	// Amendments are read fresh on every rollup; serving an approval
	// decision from a stale cache is the one staleness bug this design
	// refuses to allow.
	effectiveAll, err := s.amendments.ListEffectiveByWeek(ctx, weekRef, nil)
	if err != nil {
		return nil, err
	}

	result := &RollupResult{
		WeekReference:  weekRef,
		Findings:       []Finding{},
		Stores:         []*StoreRollup{},
		AreaGroups:     []*ManagerGroup{},
		RegionalGroups: []*ManagerGroup{},
		ComputedAt:     start,
	}

	effective := s.dedupeEffective(effectiveAll, weekRef, result)

	// Every scoped store gets a rollup row, even with zero plan lines.
	rollups := make(map[string]*StoreRollup, len(scoped))
	for _, n := range scoped {
		rollups[n.StoreID] = newStoreRollup(n)
	}

	consumed := make(map[repository.Key]bool)
	for _, line := range lines {
		if _, known := nodeByID[line.StoreID]; !known {
			// Hierarchy lookup miss: excluded from grouped output but
			// counted, never silently dropped.
			result.UnresolvedLines++
			result.Findings = append(result.Findings, Finding{
				Kind:          FindingUnresolvedStore,
				StoreID:       line.StoreID,
				StockCode:     line.StockCode,
				WeekReference: weekRef,
				Message:       fmt.Sprintf("plan line %s/%s has no store hierarchy entry", line.StoreID, line.StockCode),
			})
			continue
		}

		sr, inScope := rollups[line.StoreID]
		if !inScope {
			continue
		}

		key := repository.Key{StoreID: line.StoreID, StockCode: line.StockCode, WeekReference: weekRef}
		a := effective[key]
		if a != nil {
			consumed[key] = true
		}
		sr.addLine(line, a)
	}

	// new_item amendments have no plan line but still contribute their
	// effective quantity against a zero baseline.
	for key, a := range effective {
		if consumed[key] {
			continue
		}
		if _, known := nodeByID[key.StoreID]; !known {
			result.UnresolvedLines++
			result.Findings = append(result.Findings, Finding{
				Kind:          FindingUnresolvedStore,
				StoreID:       key.StoreID,
				StockCode:     key.StockCode,
				WeekReference: weekRef,
				Message:       fmt.Sprintf("amendment %s targets store %s with no hierarchy entry", a.ID, key.StoreID),
			})
			continue
		}
		sr, inScope := rollups[key.StoreID]
		if !inScope {
			continue
		}
		sr.addNewItem(a)
	}

	// Assemble, aggregate, order deterministically.
	for _, sr := range rollups {
		sr.finish()
		result.Stores = append(result.Stores, sr)
		result.BaselineTotalQty += sr.BaselineTotalQty
		result.RevisedTotalQty += sr.RevisedTotalQty
		result.TotalAmendments += sr.AmendmentCount
		result.PendingAmendments += sr.PendingCount
	}
	result.TotalQtyDelta = result.RevisedTotalQty - result.BaselineTotalQty
	sort.Slice(result.Stores, func(i, j int) bool {
		return result.Stores[i].StoreCode < result.Stores[j].StoreCode
	})

	result.AreaGroups = groupByManager(result.Stores, func(sr *StoreRollup) (string, string) {
		return sr.AreaManagerID, sr.AreaManagerName
	})
	result.RegionalGroups = groupByManager(result.Stores, func(sr *StoreRollup) (string, string) {
		return sr.RegionalManagerID, sr.RegionalManagerName
	})

	s.metrics.IncConsistency(len(result.Findings))
	if len(result.Findings) > 0 {
		s.log.Warn().
			Str("week_reference", weekRef).
			Int("findings", len(result.Findings)).
			Msg("Rollup computed with consistency findings")
	}

	return result, nil
}

// linesForWeek loads the full week's baseline, through the TTL cache when
// enabled.
func (s *RollupService) linesForWeek(ctx context.Context, weekRef string) ([]*repository.PlanLine, error) {
	if s.planCache != nil {
		if lines, ok := s.planCache.Get(weekRef); ok {
			return lines, nil
		}
	}
	lines, err := s.plans.LinesForWeek(ctx, weekRef, nil)
	if err != nil {
		return nil, err
	}
	if s.planCache != nil {
		s.planCache.Add(weekRef, lines)
	}
	return lines, nil
}

// dedupeEffective reduces the effective amendments to one per key. Extra
// candidates (a data anomaly) are reported as findings, and only the newest
// contributes; duplicates must never be summed.
func (s *RollupService) dedupeEffective(all []*repository.Amendment, weekRef string, result *RollupResult) map[repository.Key]*repository.Amendment {
	effective := make(map[repository.Key]*repository.Amendment, len(all))
	for _, a := range all {
		key := a.Key()
		current, exists := effective[key]
		if !exists {
			effective[key] = a
			continue
		}
		newest, loser := current, a
		if a.CreatedAt.After(current.CreatedAt) {
			newest, loser = a, current
		}
		effective[key] = newest
		result.Findings = append(result.Findings, Finding{
			Kind:          FindingDuplicateEffective,
			StoreID:       key.StoreID,
			StockCode:     key.StockCode,
			WeekReference: weekRef,
			Message: fmt.Sprintf("amendments %s and %s are both effective for one key; using %s",
				newest.ID, loser.ID, newest.ID),
		})
	}
	return effective
}

func newStoreRollup(n *repository.StoreNode) *StoreRollup {
	return &StoreRollup{
		StoreID:             n.StoreID,
		StoreCode:           n.StoreCode,
		StoreName:           n.StoreName,
		AreaManagerID:       n.AreaManagerID,
		AreaManagerName:     n.AreaManagerName,
		RegionalManagerID:   n.RegionalManagerID,
		RegionalManagerName: n.RegionalManagerName,
		categories:          make(map[string]*CategoryRollup),
	}
}

// addLine folds one baseline plan line, with its effective amendment if any,
// into the store rollup. The effective add-ons quantity is the amendment's
// approved quantity when set, else its amended quantity, else the baseline.
func (sr *StoreRollup) addLine(line *repository.PlanLine, a *repository.Amendment) {
	effectiveAddOns := line.AddOnsQty
	if a != nil {
		effectiveAddOns = a.EffectiveQty()
		sr.AmendmentCount++
		if undecided(a.Status) {
			sr.PendingCount++
		}
	}

	sr.LineCount++
	sr.BaselineOrderQty += line.OrderQty
	sr.BaselineAddOnsQty += line.AddOnsQty
	sr.BaselineTotalQty += line.OrderQty + line.AddOnsQty
	sr.RevisedTotalQty += line.OrderQty + effectiveAddOns

	cat := sr.category(line.Category)
	cat.BaselineQty += line.OrderQty + line.AddOnsQty
	cat.RevisedQty += line.OrderQty + effectiveAddOns
	if a != nil {
		cat.AmendmentCount++
	}
}

// addNewItem folds an amendment with no plan line: zero baseline, full
// effective quantity.
func (sr *StoreRollup) addNewItem(a *repository.Amendment) {
	sr.AmendmentCount++
	if undecided(a.Status) {
		sr.PendingCount++
	}
	sr.RevisedTotalQty += a.EffectiveQty()

	cat := sr.category(a.Category)
	cat.RevisedQty += a.EffectiveQty()
	cat.AmendmentCount++
}

func (sr *StoreRollup) category(name string) *CategoryRollup {
	if name == "" {
		name = "uncategorised"
	}
	c, ok := sr.categories[name]
	if !ok {
		c = &CategoryRollup{Category: name}
		sr.categories[name] = c
	}
	return c
}

func (sr *StoreRollup) finish() {
	sr.QtyDelta = sr.RevisedTotalQty - sr.BaselineTotalQty
	sr.Categories = make([]CategoryRollup, 0, len(sr.categories))
	for _, c := range sr.categories {
		sr.Categories = append(sr.Categories, *c)
	}
	sort.Slice(sr.Categories, func(i, j int) bool {
		return sr.Categories[i].Category < sr.Categories[j].Category
	})
}

// undecided reports whether an effective amendment still awaits a final
// decision.
func undecided(s repository.Status) bool {
	return s.Effective() && !s.Terminal()
}

func scopeStores(nodes []*repository.StoreNode, scope Scope) []*repository.StoreNode {
	switch {
	case scope.StoreID != "":
		for _, n := range nodes {
			if n.StoreID == scope.StoreID {
				return []*repository.StoreNode{n}
			}
		}
		return nil
	case scope.AreaManagerID != "":
		return filterNodes(nodes, func(n *repository.StoreNode) bool {
			return n.AreaManagerID == scope.AreaManagerID
		})
	case scope.RegionalManagerID != "":
		return filterNodes(nodes, func(n *repository.StoreNode) bool {
			return n.RegionalManagerID == scope.RegionalManagerID
		})
	}
	return nodes
}

func filterNodes(nodes []*repository.StoreNode, keep func(*repository.StoreNode) bool) []*repository.StoreNode {
	out := make([]*repository.StoreNode, 0, len(nodes))
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func groupByManager(stores []*StoreRollup, key func(*StoreRollup) (string, string)) []*ManagerGroup {
	groups := make(map[string]*ManagerGroup)
	for _, sr := range stores {
		id, name := key(sr)
		if id == "" {
			id, name = "unknown", "Unknown"
		}
		g, ok := groups[id]
		if !ok {
			g = &ManagerGroup{ManagerID: id, ManagerName: name}
			groups[id] = g
		}
		g.StoreIDs = append(g.StoreIDs, sr.StoreID)
		g.BaselineTotalQty += sr.BaselineTotalQty
		g.RevisedTotalQty += sr.RevisedTotalQty
		g.TotalQtyDelta += sr.QtyDelta
		g.TotalAmendments += sr.AmendmentCount
		g.PendingAmendments += sr.PendingCount
		if sr.AmendmentCount > 0 {
			g.StoresWithAmendments++
		}
	}

	out := make([]*ManagerGroup, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.StoreIDs)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ManagerID < out[j].ManagerID })
	return out
}
