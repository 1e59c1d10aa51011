package sheet

import (
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/landscape/model"
)

// ConfigSheet binds a key of a run configuration payload to the sheet it
// is imported through. Multi sheets take a list of rows, others one object.
type ConfigSheet struct {
	Key        string
	Descriptor Descriptor
	Multi      bool
}

// ReportSheet binds an engine report name to the row kind it produces.
type ReportSheet struct {
	Report     string
	Descriptor Descriptor
}

var (
	terminology = MustNew("STSim_Terminology", model.KindTerminology,
		[]Pair{{"amount_label", "AmountLabel"}, {"amount_units", "AmountUnits"}, {"state_label_x", "StateLabelX"},
			{"state_label_y", "StateLabelY"}, {"primary_stratum_label", "PrimaryStratumLabel"},
			{"secondary_stratum_label", "SecondaryStratumLabel"}, {"timestep_units", "TimestepUnits"}},
		Identity, Identity, Identity, Identity, Identity, Identity, Identity)

	distributionType = MustNew("Stats_DistributionType", model.KindDistributionType,
		[]Pair{{"name", "Name"}, {"description", "Description"}, {"is_internal", "IsInternal"}},
		Identity, Identity, EmptyOrYesToBool)

	stratum = MustNew("STSim_Stratum", model.KindStratum,
		[]Pair{{"name", "Name"}, {"description", "Description"}, {"color", "Color"}},
		Identity, Identity, Identity)

	secondaryStratum = MustNew("STSim_SecondaryStratum", model.KindSecondaryStratum,
		[]Pair{{"name", "Name"}, {"description", "Description"}},
		Identity, Identity)

	stateClass = MustNew("STSim_StateClass", model.KindStateClass,
		[]Pair{{"name", "Name"}, {"state_label_x", "StateLabelXID"}, {"state_label_y", "StateLabelYID"},
			{"description", "Description"}, {"color", "Color"}},
		Identity, Identity, Identity, Identity, Identity)

	transitionType = MustNew("STSim_TransitionType", model.KindTransitionType,
		[]Pair{{"name", "Name"}, {"description", "Description"}, {"color", "Color"}, {"map_id", "MapID"}},
		Identity, Identity, Identity, DefaultInt)

	transitionGroup = MustNew("STSim_TransitionGroup", model.KindTransitionGroup,
		[]Pair{{"name", "Name"}, {"description", "Description"}},
		Identity, Identity)

	transitionTypeGroup = MustNew("STSim_TransitionTypeGroup", model.KindTransitionTypeGroup,
		[]Pair{{"transition_type", "TransitionTypeID"}, {"transition_group", "TransitionGroupID"}, {"is_primary", "IsPrimary"}},
		Ref(model.KindTransitionType), Ref(model.KindTransitionGroup), EmptyOrYesToBool)

	transitionMultiplierType = MustNew("STSim_TransitionMultiplierType", model.KindTransitionMultiplierType,
		[]Pair{{"name", "Name"}, {"description", "Description"}},
		Identity, Identity)

	attributeGroup = MustNew("STSim_AttributeGroup", model.KindAttributeGroup,
		[]Pair{{"name", "Name"}, {"description", "Description"}},
		Identity, Identity)

	stateAttributeType = MustNew("STSim_StateAttributeType", model.KindStateAttributeType,
		[]Pair{{"name", "Name"}, {"attribute_group", "AttributeGroupID"}, {"units", "Units"}, {"description", "Description"}},
		Identity, Ref(model.KindAttributeGroup), Identity, Identity)

	transitionAttributeType = MustNew("STSim_TransitionAttributeType", model.KindTransitionAttributeType,
		[]Pair{{"name", "Name"}, {"attribute_group", "AttributeGroupID"}, {"units", "Units"}, {"description", "Description"}},
		Identity, Ref(model.KindAttributeGroup), Identity, Identity)
)

var (
	distributionValue = MustNew("Stats_DistributionValue", model.KindDistributionValue,
		[]Pair{{"distribution_type", "DistributionTypeID"}, {"iteration", "Iteration"}, {"timestep", "Timestep"},
			{"stratum", "StratumID"}, {"secondary_stratum", "SecondaryStratumID"}, {"value", "Value"},
			{"value_distribution_min", "ValueDistributionMin"}, {"value_distribution_max", "ValueDistributionMax"},
			{"relative_frequency", "ValueDistributionRelativeFrequency"}},
		Ref(model.KindDistributionType), TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum),
		DefaultFloat, DefaultFloat, DefaultFloat, DefaultFloat)

	runControl = MustNew("STSim_RunControl", model.KindRunControl,
		[]Pair{{"min_iteration", "MinimumIteration"}, {"max_iteration", "MaximumIteration"},
			{"min_timestep", "MinimumTimestep"}, {"max_timestep", "MaximumTimestep"}, {"is_spatial", "IsSpatial"}},
		DefaultInt, DefaultInt, DefaultInt, DefaultInt, EmptyOrYesToBool)

	outputOption = MustNew("STSim_OutputOptions", model.KindOutputOption,
		[]Pair{{"sum_sc", "SummaryOutputSC"}, {"sum_sc_t", "SummaryOutputSCTimesteps"},
			{"sum_tr", "SummaryOutputTR"}, {"sum_tr_t", "SummaryOutputTRTimesteps"},
			{"sum_sa", "SummaryOutputSA"}, {"sum_sa_t", "SummaryOutputSATimesteps"},
			{"sum_ta", "SummaryOutputTA"}, {"sum_ta_t", "SummaryOutputTATimesteps"},
			{"raster_sc", "RasterOutputSC"}, {"raster_sc_t", "RasterOutputSCTimesteps"},
			{"raster_tr", "RasterOutputTR"}, {"raster_tr_t", "RasterOutputTRTimesteps"}},
		EmptyOrYesToBool, DefaultInt, EmptyOrYesToBool, DefaultInt, EmptyOrYesToBool, DefaultInt,
		EmptyOrYesToBool, DefaultInt, EmptyOrYesToBool, DefaultInt, EmptyOrYesToBool, DefaultInt)

	deterministicTransition = MustNew("STSim_DeterministicTransition", model.KindDeterministicTransition,
		[]Pair{{"stratum_src", "StratumIDSource"}, {"stateclass_src", "StateClassIDSource"},
			{"stratum_dest", "StratumIDDest"}, {"stateclass_dest", "StateClassIDDest"},
			{"age_min", "AgeMin"}, {"age_max", "AgeMax"}, {"location", "Location"}},
		Ref(model.KindStratum), Ref(model.KindStateClass), Ref(model.KindStratum), Ref(model.KindStateClass),
		DefaultInt, DefaultInt, Identity)

	transition = MustNew("STSim_Transition", model.KindTransition,
		[]Pair{{"stratum_src", "StratumIDSource"}, {"stateclass_src", "StateClassIDSource"},
			{"stratum_dest", "StratumIDDest"}, {"stateclass_dest", "StateClassIDDest"},
			{"transition_type", "TransitionTypeID"}, {"probability", "Probability"}, {"proportion", "Proportion"},
			{"age_min", "AgeMin"}, {"age_max", "AgeMax"}, {"age_relative", "AgeRelative"}, {"age_reset", "AgeReset"},
			{"tst_min", "TSTMin"}, {"tst_max", "TSTMax"}, {"tst_relative", "TSTRelative"}},
		Ref(model.KindStratum), Ref(model.KindStateClass), Ref(model.KindStratum), Ref(model.KindStateClass),
		Ref(model.KindTransitionType), DefaultFloat, DefaultFloat,
		DefaultInt, DefaultInt, DefaultInt, EmptyOrYesToBool, DefaultInt, DefaultInt, DefaultInt)

	initialConditionsNonSpatial = MustNew("STSim_InitialConditionsNonSpatial", model.KindInitialConditionsNonSpatial,
		[]Pair{{"total_amount", "TotalAmount"}, {"num_cells", "NumCells"}, {"calc_from_dist", "CalcFromDist"}},
		DefaultFloat, DefaultInt, EmptyOrYesToBool)

	initialConditionsNonSpatialDistribution = MustNew("STSim_InitialConditionsNonSpatialDistribution",
		model.KindInitialConditionsNonSpatialDistribution,
		[]Pair{{"stratum", "StratumID"}, {"secondary_stratum", "SecondaryStratumID"}, {"stateclass", "StateClassID"},
			{"relative_amount", "RelativeAmount"}, {"age_min", "AgeMin"}, {"age_max", "AgeMax"}},
		Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindStateClass),
		DefaultFloat, DefaultInt, DefaultInt)

	initialConditionsSpatial = MustNew("STSim_InitialConditionsSpatial", model.KindInitialConditionsSpatial,
		[]Pair{{"num_rows", "NumRows"}, {"num_cols", "NumColumns"}, {"num_cells", "NumCells"},
			{"cell_size", "CellSize"}, {"cell_size_units", "CellSizeUnits"}, {"cell_area", "CellArea"},
			{"cell_area_override", "CellAreaOverride"}, {"xll_corner", "XLLCorner"}, {"yll_corner", "YLLCorner"},
			{"srs", "SRS"}, {"stratum_file_name", "StratumFileName"},
			{"secondary_stratum_file_name", "SecondaryStratumFileName"},
			{"stateclass_file_name", "StateClassFileName"}, {"age_file_name", "AgeFileName"}},
		DefaultInt, DefaultInt, DefaultInt, DefaultFloat, Identity, DefaultFloat, EmptyOrYesToBool,
		DefaultFloat, DefaultFloat, Identity, Identity, Identity, Identity, Identity)

	transitionTarget = MustNew("STSim_TransitionTarget", model.KindTransitionTarget,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"secondary_stratum", "SecondaryStratumID"}, {"transition_group", "TransitionGroupID"},
			{"target_area", "Amount"}, {"distribution_type", "DistributionType"},
			{"distribution_sd", "DistributionSD"}, {"distribution_min", "DistributionMin"}, {"distribution_max", "DistributionMax"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindTransitionGroup),
		DefaultFloat, Ref(model.KindDistributionType), DefaultFloat, DefaultFloat, DefaultFloat)

	transitionMultiplierValue = MustNew("STSim_TransitionMultiplierValue", model.KindTransitionMultiplierValue,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"secondary_stratum", "SecondaryStratumID"}, {"stateclass", "StateClassID"},
			{"transition_group", "TransitionGroupID"}, {"transition_multiplier_type", "TransitionMultiplierTypeID"},
			{"multiplier", "Amount"}, {"distribution_type", "DistributionType"},
			{"distribution_sd", "DistributionSD"}, {"distribution_min", "DistributionMin"}, {"distribution_max", "DistributionMax"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindStateClass),
		Ref(model.KindTransitionGroup), Ref(model.KindTransitionMultiplierType),
		DefaultFloat, Ref(model.KindDistributionType), DefaultFloat, DefaultFloat, DefaultFloat)

	transitionSizeDistribution = MustNew("STSim_TransitionSizeDistribution", model.KindTransitionSizeDistribution,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"transition_group", "TransitionGroupID"}, {"maximum_area", "MaximumArea"}, {"relative_amount", "RelativeAmount"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindTransitionGroup), DefaultFloat, DefaultFloat)

	transitionSizePrioritization = MustNew("STSim_TransitionSizePrioritization", model.KindTransitionSizePrioritization,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"transition_group", "TransitionGroupID"}, {"priority", "Priority"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindTransitionGroup), Identity)

	transitionSpatialMultiplier = MustNew("STSim_TransitionSpatialMultiplier", model.KindTransitionSpatialMultiplier,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"transition_group", "TransitionGroupID"},
			{"transition_multiplier_type", "TransitionMultiplierTypeID"}, {"transition_multiplier_file_name", "MultiplierFileName"}},
		TimeInt, TimeInt, Ref(model.KindTransitionGroup), Ref(model.KindTransitionMultiplierType), Identity)

	stateAttributeValue = MustNew("STSim_StateAttributeValue", model.KindStateAttributeValue,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"secondary_stratum", "SecondaryStratumID"}, {"stateclass", "StateClassID"},
			{"state_attribute_type", "StateAttributeTypeID"}, {"value", "Value"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindStateClass),
		Ref(model.KindStateAttributeType), DefaultFloat)

	transitionAttributeValue = MustNew("STSim_TransitionAttributeValue", model.KindTransitionAttributeValue,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"secondary_stratum", "SecondaryStratumID"}, {"transition_group", "TransitionGroupID"},
			{"stateclass", "StateClassID"}, {"transition_attribute_type", "TransitionAttributeTypeID"}, {"value", "Value"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindTransitionGroup),
		Ref(model.KindStateClass), Ref(model.KindTransitionAttributeType), DefaultFloat)

	transitionAttributeTarget = MustNew("STSim_TransitionAttributeTarget", model.KindTransitionAttributeTarget,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "StratumID"},
			{"secondary_stratum", "SecondaryStratumID"}, {"transition_attribute_type", "TransitionAttributeTypeID"},
			{"target", "Amount"}, {"distribution_type", "DistributionType"},
			{"distribution_sd", "DistributionSD"}, {"distribution_min", "DistributionMin"}, {"distribution_max", "DistributionMax"}},
		TimeInt, TimeInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindTransitionAttributeType),
		DefaultFloat, Ref(model.KindDistributionType), DefaultFloat, DefaultFloat, DefaultFloat)
)

var (
	stateClassSummary = MustNew("stateclass-summary", model.KindStateClassSummaryRow,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "Stratum"},
			{"secondary_stratum", "SecondaryStratum"}, {"stateclass", "StateClass"}, {"amount", "Amount"},
			{"proportion_of_landscape", "ProportionOfLandscape"}, {"proportion_of_stratum_type", "ProportionOfStratumType"}},
		DefaultInt, DefaultInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindStateClass),
		DefaultFloat, DefaultFloat, DefaultFloat)

	transitionSummary = MustNew("transition-summary", model.KindTransitionSummaryRow,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "Stratum"},
			{"secondary_stratum", "SecondaryStratum"}, {"transition_group", "TransitionGroup"}, {"amount", "Amount"}},
		DefaultInt, DefaultInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindTransitionGroup),
		DefaultFloat)

	transitionByStateClassSummary = MustNew("transition-stateclass-summary", model.KindTransitionByStateClassSummaryRow,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "Stratum"},
			{"secondary_stratum", "SecondaryStratum"}, {"transition_type", "TransitionType"},
			{"stateclass_src", "StateClass"}, {"stateclass_dest", "EndStateClass"}, {"amount", "Amount"}},
		DefaultInt, DefaultInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindTransitionType),
		Ref(model.KindStateClass), Ref(model.KindStateClass), DefaultFloat)

	stateAttributeSummary = MustNew("state-attributes", model.KindStateAttributeSummaryRow,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "Stratum"},
			{"secondary_stratum", "SecondaryStratum"}, {"state_attribute_type", "StateAttributeType"}, {"amount", "Amount"}},
		DefaultInt, DefaultInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindStateAttributeType),
		DefaultFloat)

	transitionAttributeSummary = MustNew("transition-attributes", model.KindTransitionAttributeSummaryRow,
		[]Pair{{"iteration", "Iteration"}, {"timestep", "Timestep"}, {"stratum", "Stratum"},
			{"secondary_stratum", "SecondaryStratum"}, {"transition_attribute_type", "TransitionAttributeType"}, {"amount", "Amount"}},
		DefaultInt, DefaultInt, Ref(model.KindStratum), Ref(model.KindSecondaryStratum), Ref(model.KindTransitionAttributeType),
		DefaultFloat)
)

// DefinitionSheets returns the project definition sheets in import order.
// Later sheets reference earlier ones by name.
func DefinitionSheets() []Descriptor {
	return []Descriptor{
		terminology,
		distributionType,
		stratum,
		secondaryStratum,
		stateClass,
		transitionType,
		transitionGroup,
		transitionTypeGroup,
		transitionMultiplierType,
		attributeGroup,
		stateAttributeType,
		transitionAttributeType,
	}
}

// ValueSheets returns the scenario value sheets in import order.
func ValueSheets() []Descriptor {
	return []Descriptor{
		distributionValue,
		runControl,
		outputOption,
		deterministicTransition,
		transition,
		initialConditionsNonSpatial,
		initialConditionsNonSpatialDistribution,
		initialConditionsSpatial,
		transitionTarget,
		transitionMultiplierValue,
		transitionSizeDistribution,
		transitionSizePrioritization,
		transitionSpatialMultiplier,
		stateAttributeValue,
		transitionAttributeValue,
		transitionAttributeTarget,
	}
}

// ConfigSheets returns the sheets a run configuration is imported through,
// in import order.
func ConfigSheets() []ConfigSheet {
	return []ConfigSheet{
		{Key: "run_control", Descriptor: runControl},
		{Key: "output_options", Descriptor: outputOption},
		{Key: "initial_conditions_nonspatial_settings", Descriptor: initialConditionsNonSpatial},
		{Key: "distribution_values", Descriptor: distributionValue, Multi: true},
		{Key: "deterministic_transitions", Descriptor: deterministicTransition, Multi: true},
		{Key: "transitions", Descriptor: transition, Multi: true},
		{Key: "initial_conditions_nonspatial_distributions", Descriptor: initialConditionsNonSpatialDistribution, Multi: true},
		{Key: "transition_targets", Descriptor: transitionTarget, Multi: true},
		{Key: "transition_multiplier_values", Descriptor: transitionMultiplierValue, Multi: true},
		{Key: "transition_size_distributions", Descriptor: transitionSizeDistribution, Multi: true},
		{Key: "transition_size_prioritizations", Descriptor: transitionSizePrioritization, Multi: true},
		{Key: "transition_spatial_multipliers", Descriptor: transitionSpatialMultiplier, Multi: true},
		{Key: "state_attribute_values", Descriptor: stateAttributeValue, Multi: true},
		{Key: "transition_attribute_values", Descriptor: transitionAttributeValue, Multi: true},
		{Key: "transition_attribute_targets", Descriptor: transitionAttributeTarget, Multi: true},
	}
}

// ReportSheets returns the reports imported for every result scenario.
func ReportSheets() []ReportSheet {
	return []ReportSheet{
		{Report: stateClassSummary.Sheet, Descriptor: stateClassSummary},
		{Report: transitionSummary.Sheet, Descriptor: transitionSummary},
		{Report: transitionByStateClassSummary.Sheet, Descriptor: transitionByStateClassSummary},
		{Report: stateAttributeSummary.Sheet, Descriptor: stateAttributeSummary},
		{Report: transitionAttributeSummary.Sheet, Descriptor: transitionAttributeSummary},
	}
}

// ValueSheet returns the value descriptor for kind.
func ValueSheet(kind model.Kind) (Descriptor, bool) {
	for _, d := range ValueSheets() {
		if d.Kind == kind {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Validate checks every descriptor against its record shape and rejects
// duplicate config keys.
func Validate(defs, values []Descriptor, configs []ConfigSheet, reports []ReportSheet) error {
	all := make([]Descriptor, 0, len(defs)+len(values)+len(configs)+len(reports))
	all = append(all, defs...)
	all = append(all, values...)
	for _, c := range configs {
		all = append(all, c.Descriptor)
	}
	for _, r := range reports {
		all = append(all, r.Descriptor)
	}
	for _, d := range all {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	keys := make(map[string]bool, len(configs))
	for _, c := range configs {
		if keys[c.Key] {
			return exception.Newf(exception.KindConfiguration, "sheet", "config key %q is bound twice", c.Key)
		}
		keys[c.Key] = true
	}
	return nil
}
