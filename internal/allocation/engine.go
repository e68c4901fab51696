// internal/allocation/engine.go
package allocation

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/javajoker/multistore-backend/internal/apperrors"
	"github.com/javajoker/multistore-backend/internal/models"
)

type Strategy string

const (
	StrategyBalanced    Strategy = "balanced"
	StrategyPriority    Strategy = "priority"
	StrategyDemandBased Strategy = "demand-based"
	StrategyGeographic  Strategy = "geographic"
)

func ParseStrategy(value string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(value))); s {
	case StrategyBalanced, StrategyPriority, StrategyDemandBased, StrategyGeographic:
		return s, nil
	}
	return "", apperrors.NewValidationError("unknown allocation strategy %q", value)
}

func (s Strategy) weighted() bool {
	return s == StrategyDemandBased || s == StrategyGeographic
}

// Request describes one variant's allocation for one store.
type Request struct {
	VariantID      uuid.UUID
	MasterQuantity int
	// Committed is the quantity already promised to other stores.
	Committed int
	// Requested is the explicit quantity for this store; nil takes everything available.
	Requested *int
	Locations []models.Location
	Strategy  Strategy
	// Weights feed the demand-based and geographic strategies.
	Weights map[uuid.UUID]float64
}

type Allocation struct {
	Strategy    Strategy                  `json:"strategy"`
	Available   int                       `json:"available"`
	Target      int                       `json:"target"`
	Quantities  models.LocationQuantities `json:"quantities"`
	Unallocated int                       `json:"unallocated"`
}

func (a *Allocation) Total() int {
	return a.Quantities.Total()
}

// Allocate distributes the store's share of a variant's master quantity over
// the store's eligible locations.
func Allocate(req Request) (*Allocation, error) {
	if req.MasterQuantity < 0 {
		return nil, apperrors.NewValidationError("master quantity cannot be negative")
	}
	if req.Committed < 0 {
		return nil, apperrors.NewValidationError("committed quantity cannot be negative")
	}
	if req.Requested != nil && *req.Requested < 0 {
		return nil, apperrors.NewValidationError("requested quantity cannot be negative")
	}
	if req.Strategy == "" {
		req.Strategy = StrategyBalanced
	}
	if _, err := ParseStrategy(string(req.Strategy)); err != nil {
		return nil, err
	}

	available := req.MasterQuantity - req.Committed
	if available < 0 {
		requested := 0
		if req.Requested != nil {
			requested = *req.Requested
		}
		return nil, &apperrors.InsufficientInventoryError{VariantID: req.VariantID, Requested: requested, Available: 0}
	}

	target := available
	if req.Requested != nil {
		if *req.Requested > available {
			return nil, &apperrors.InsufficientInventoryError{VariantID: req.VariantID, Requested: *req.Requested, Available: available}
		}
		target = *req.Requested
	}

	eligible := make([]models.Location, 0, len(req.Locations))
	for _, loc := range req.Locations {
		if loc.Capacity != nil && *loc.Capacity < 0 {
			return nil, apperrors.NewValidationError("location %s has a negative capacity", loc.ID)
		}
		if loc.IsActive && loc.ShipsInventory {
			eligible = append(eligible, loc)
		}
	}

	result := &Allocation{
		Strategy:   req.Strategy,
		Available:  available,
		Target:     target,
		Quantities: make(models.LocationQuantities, len(eligible)),
	}
	for _, loc := range eligible {
		result.Quantities[loc.ID] = 0
	}

	if req.Strategy.weighted() {
		if err := validateWeights(req.Strategy, eligible, req.Weights); err != nil {
			return nil, err
		}
	}

	if target > 0 && len(eligible) > 0 {
		switch req.Strategy {
		case StrategyBalanced:
			balanced(target, byID(eligible), result.Quantities)
		case StrategyPriority:
			priority(target, priorityOrder(req.Locations, eligible), result.Quantities)
		default:
			weighted(target, byID(eligible), req.Weights, result.Quantities)
		}
	}

	result.Unallocated = target - result.Total()
	return result, nil
}

// PrimaryLocation is the first active location that fulfils online orders,
// else the first active location, in declared order.
func PrimaryLocation(locations []models.Location) *models.Location {
	ordered := append([]models.Location(nil), locations...)
	models.SortByPosition(ordered)

	var firstActive *models.Location
	for i := range ordered {
		if !ordered[i].IsActive {
			continue
		}
		if ordered[i].FulfillsOnlineOrders {
			return &ordered[i]
		}
		if firstActive == nil {
			firstActive = &ordered[i]
		}
	}
	return firstActive
}

func room(loc models.Location, assigned int) int {
	if loc.Capacity == nil {
		return math.MaxInt
	}
	return *loc.Capacity - assigned
}

func byID(locations []models.Location) []models.Location {
	sorted := append([]models.Location(nil), locations...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	return sorted
}

// balanced water-fills: an even split, remainder to the first locations in
// id order, repeated over the locations that still have room.
func balanced(target int, locations []models.Location, out models.LocationQuantities) {
	remaining := target
	for remaining > 0 {
		open := withRoom(locations, out)
		if len(open) == 0 {
			return
		}

		share := remaining / len(open)
		extra := remaining % len(open)
		progressed := 0
		for i, loc := range open {
			want := share
			if i < extra {
				want++
			}
			give := min(want, room(loc, out[loc.ID]))
			out[loc.ID] += give
			progressed += give
		}
		if progressed == 0 {
			return
		}
		remaining -= progressed
	}
}

func priorityOrder(all, eligible []models.Location) []models.Location {
	ordered := append([]models.Location(nil), eligible...)
	models.SortByPosition(ordered)

	primary := PrimaryLocation(all)
	if primary == nil {
		return ordered
	}
	for i, loc := range ordered {
		if loc.ID == primary.ID {
			return append([]models.Location{loc}, append(ordered[:i:i], ordered[i+1:]...)...)
		}
	}
	return ordered
}

func priority(target int, ordered []models.Location, out models.LocationQuantities) {
	remaining := target
	for _, loc := range ordered {
		if remaining == 0 {
			return
		}
		give := min(remaining, room(loc, out[loc.ID]))
		out[loc.ID] += give
		remaining -= give
	}
}

func validateWeights(strategy Strategy, eligible []models.Location, weights map[uuid.UUID]float64) error {
	positive := false
	for id, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return apperrors.NewValidationError("invalid weight %v for location %s", w, id)
		}
	}
	for _, loc := range eligible {
		if weights[loc.ID] > 0 {
			positive = true
			break
		}
	}
	if !positive && len(eligible) > 0 {
		return apperrors.NewValidationError("strategy %s needs a positive weight for at least one eligible location", strategy)
	}
	return nil
}

type share struct {
	loc      models.Location
	whole    int
	fraction float64
}

// weighted splits proportionally to weight with the largest remainder
// method, then re-runs the split over locations with room left.
func weighted(target int, locations []models.Location, weights map[uuid.UUID]float64, out models.LocationQuantities) {
	remaining := target
	for remaining > 0 {
		open := make([]models.Location, 0, len(locations))
		total := 0.0
		for _, loc := range withRoom(locations, out) {
			if w := weights[loc.ID]; w > 0 {
				open = append(open, loc)
				total += w
			}
		}
		if len(open) == 0 {
			return
		}

		shares := make([]share, len(open))
		assigned := 0
		for i, loc := range open {
			exact := float64(remaining) * weights[loc.ID] / total
			whole := int(math.Floor(exact))
			shares[i] = share{loc: loc, whole: whole, fraction: exact - float64(whole)}
			assigned += whole
		}

		sort.SliceStable(shares, func(i, j int) bool {
			if shares[i].fraction != shares[j].fraction {
				return shares[i].fraction > shares[j].fraction
			}
			return shares[i].loc.ID.String() < shares[j].loc.ID.String()
		})
		for i := 0; assigned < remaining; i = (i + 1) % len(shares) {
			shares[i].whole++
			assigned++
		}
		for i := len(shares) - 1; assigned > remaining; i-- {
			if shares[i].whole > 0 {
				shares[i].whole--
				assigned--
			}
			if i == 0 {
				i = len(shares)
			}
		}

		progressed := 0
		for _, s := range shares {
			give := min(s.whole, room(s.loc, out[s.loc.ID]))
			out[s.loc.ID] += give
			progressed += give
		}
		if progressed == 0 {
			return
		}
		remaining -= progressed
	}
}

func withRoom(locations []models.Location, out models.LocationQuantities) []models.Location {
	open := make([]models.Location, 0, len(locations))
	for _, loc := range locations {
		if room(loc, out[loc.ID]) > 0 {
			open = append(open, loc)
		}
	}
	return open
}
