package model

import (
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

var (
	correlators   = []string{"iteration", "timestep"}
	distribution  = []string{"distribution_type", "distribution_sd", "distribution_min", "distribution_max"}
	transitionEnd = []string{"stratum_src", "stateclass_src", "stratum_dest", "stateclass_dest"}
)

func join(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Fields lists, in column order, the internal fields each record kind
// carries. Sheet descriptors are checked against it at startup.
var Fields = map[Kind][]string{
	KindTerminology:              {"amount_label", "amount_units", "state_label_x", "state_label_y", "primary_stratum_label", "secondary_stratum_label", "timestep_units"},
	KindDistributionType:         {"name", "description", "is_internal"},
	KindStratum:                  {"name", "description", "color"},
	KindSecondaryStratum:         {"name", "description"},
	KindStateClass:               {"name", "state_label_x", "state_label_y", "description", "color"},
	KindTransitionType:           {"name", "description", "color", "map_id"},
	KindTransitionGroup:          {"name", "description"},
	KindTransitionTypeGroup:      {"transition_type", "transition_group", "is_primary"},
	KindTransitionMultiplierType: {"name", "description"},
	KindAttributeGroup:           {"name", "description"},
	KindStateAttributeType:       {"name", "attribute_group", "units", "description"},
	KindTransitionAttributeType:  {"name", "attribute_group", "units", "description"},

	KindDistributionValue: join([]string{"distribution_type"}, correlators,
		[]string{"stratum", "secondary_stratum", "value", "value_distribution_min", "value_distribution_max", "relative_frequency"}),
	KindRunControl:   {"min_iteration", "max_iteration", "min_timestep", "max_timestep", "is_spatial"},
	KindOutputOption: {"sum_sc", "sum_sc_t", "sum_tr", "sum_tr_t", "sum_sa", "sum_sa_t", "sum_ta", "sum_ta_t", "raster_sc", "raster_sc_t", "raster_tr", "raster_tr_t"},
	KindDeterministicTransition: join(transitionEnd,
		[]string{"age_min", "age_max", "location"}),
	KindTransition: join(transitionEnd,
		[]string{"transition_type", "probability", "proportion", "age_min", "age_max", "age_relative", "age_reset", "tst_min", "tst_max", "tst_relative"}),
	KindInitialConditionsNonSpatial:             {"total_amount", "num_cells", "calc_from_dist"},
	KindInitialConditionsNonSpatialDistribution: {"stratum", "secondary_stratum", "stateclass", "relative_amount", "age_min", "age_max"},
	KindInitialConditionsSpatial: {"num_rows", "num_cols", "num_cells", "cell_size", "cell_size_units", "cell_area", "cell_area_override",
		"xll_corner", "yll_corner", "srs", "stratum_file_name", "secondary_stratum_file_name", "stateclass_file_name", "age_file_name"},
	KindTransitionTarget: join(correlators,
		[]string{"stratum", "secondary_stratum", "transition_group", "target_area"}, distribution),
	KindTransitionMultiplierValue: join(correlators,
		[]string{"stratum", "secondary_stratum", "stateclass", "transition_group", "transition_multiplier_type", "multiplier"}, distribution),
	KindTransitionSizeDistribution: join(correlators,
		[]string{"stratum", "transition_group", "maximum_area", "relative_amount"}),
	KindTransitionSizePrioritization: join(correlators,
		[]string{"stratum", "transition_group", "priority"}),
	KindTransitionSpatialMultiplier: join(correlators,
		[]string{"transition_group", "transition_multiplier_type", "transition_multiplier_file_name"}),
	KindStateAttributeValue: join(correlators,
		[]string{"stratum", "secondary_stratum", "stateclass", "state_attribute_type", "value"}),
	KindTransitionAttributeValue: join(correlators,
		[]string{"stratum", "secondary_stratum", "transition_group", "stateclass", "transition_attribute_type", "value"}),
	KindTransitionAttributeTarget: join(correlators,
		[]string{"stratum", "secondary_stratum", "transition_attribute_type", "target"}, distribution),

	KindStateClassSummaryRow: join(correlators,
		[]string{"stratum", "secondary_stratum", "stateclass", "amount", "proportion_of_landscape", "proportion_of_stratum_type"}),
	KindTransitionSummaryRow: join(correlators,
		[]string{"stratum", "secondary_stratum", "transition_group", "amount"}),
	KindTransitionByStateClassSummaryRow: join(correlators,
		[]string{"stratum", "secondary_stratum", "transition_type", "stateclass_src", "stateclass_dest", "amount"}),
	KindStateAttributeSummaryRow: join(correlators,
		[]string{"stratum", "secondary_stratum", "state_attribute_type", "amount"}),
	KindTransitionAttributeSummaryRow: join(correlators,
		[]string{"stratum", "secondary_stratum", "transition_attribute_type", "amount"}),
}

// Int extracts an integer field. JSON round trips turn integers into
// float64 or json.Number, both of which are accepted when integral.
func (r Record) Int(name string) (int64, bool) {
	return AsInt(r.Fields[name])
}

// AsInt converts the numeric shapes a field may take after decoding.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// AsFloat converts a decoded numeric field to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
