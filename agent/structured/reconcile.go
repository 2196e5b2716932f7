package structured

import (
	"github.com/BaSui01/streamform/types"
)

// PruneStats counts what a reconciliation discarded.
type PruneStats struct {
	// UnknownFields counts object keys absent from the schema.
	UnknownFields int
	// ScalarViolations counts leaves failing their kind or literal check.
	ScalarViolations int
}

// Add accumulates other into s.
func (s *PruneStats) Add(other PruneStats) {
	s.UnknownFields += other.UnknownFields
	s.ScalarViolations += other.ScalarViolations
}

// Reconcile returns the closest value to candidate that is valid against schema
// wherever it is present.
//
// The candidate must have the shape of Relax(schema) (see ValidateShape);
// otherwise an error with code types.ErrIncompatibleShape wrapping
// *ValidationErrors is returned. Literal and integer constraints are enforced
// by pruning, so a half-streamed literal is omitted rather than fatal.
// The result never contains keys unknown to schema nor leaves failing their
// scalar check. Objects and arrays are never dropped, and arrays keep their
// length: a failing scalar element is replaced with nil.
func Reconcile(schema Descriptor, candidate any) (any, error) {
	out, _, err := NewReconciler(schema).ReconcileWithStats(candidate)
	return out, err
}

// Reconciler reconciles successive candidates against one schema.
// It is safe for concurrent use.
type Reconciler struct {
	schema  Descriptor
	relaxed Descriptor
}

// NewReconciler precomputes the relaxed form of schema.
func NewReconciler(schema Descriptor) *Reconciler {
	return &Reconciler{schema: schema, relaxed: Relax(schema)}
}

// Schema returns the original schema.
func (r *Reconciler) Schema() Descriptor { return r.schema }

// Relaxed returns the relaxed schema.
func (r *Reconciler) Relaxed() Descriptor { return r.relaxed }

// Reconcile reconciles candidate against the schema.
func (r *Reconciler) Reconcile(candidate any) (any, error) {
	out, _, err := r.ReconcileWithStats(candidate)
	return out, err
}

// ReconcileWithStats is Reconcile plus counters of what was pruned.
func (r *Reconciler) ReconcileWithStats(candidate any) (any, PruneStats, error) {
	var stats PruneStats
	if err := ValidateShape(candidate, r.relaxed); err != nil {
		return nil, stats, types.NewIncompatibleShapeError(err)
	}
	out, _ := prune(candidate, r.schema, &stats)
	return out, stats, nil
}

// prune strips value down to what d accepts. The boolean is false when the
// node must be omitted from its parent.
func prune(value any, d Descriptor, stats *PruneStats) (any, bool) {
	if value == nil {
		return nil, false
	}

	switch s := d.(type) {
	case *Optional:
		return prune(value, s.Inner, stats)
	case *Object:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(obj))
		for key, v := range obj {
			f, known := s.Get(key)
			if !known {
				stats.UnknownFields++
				continue
			}
			if pv, present := prune(v, f.Schema, stats); present {
				out[key] = pv
			}
		}
		return out, true
	case *Array:
		arr, ok := value.([]any)
		if !ok {
			return nil, false
		}
		out := make([]any, len(arr))
		for i, item := range arr {
			if pv, present := prune(item, s.Element, stats); present {
				out[i] = pv
			}
		}
		return out, true
	case *Scalar:
		if checkScalar(value, s) != "" {
			stats.ScalarViolations++
			return nil, false
		}
		return value, true
	default:
		return nil, false
	}
}
