// Package model holds the entities shared by the engine adapter, the sheet
// pipeline and the job runner.
package model

import (
	"time"
)

// Library is one engine-managed library file plus its frozen original.
// Imported is set once every project and scenario has been imported.
type Library struct {
	ID           int64
	Name         string
	File         string
	OriginalFile string
	Imported     bool
	CreatedAt    time.Time
}

// HasOriginal reports whether a read-only original copy is configured.
func (l Library) HasOriginal() bool {
	return l.OriginalFile != ""
}

// Project belongs to one library and carries the engine's pid.
type Project struct {
	ID        int64
	LibraryID int64
	PID       int
	Name      string
}

// Scenario belongs to one project and carries the engine's sid.
type Scenario struct {
	ID        int64
	ProjectID int64
	SID       int
	Name      string
	IsResult  bool
	ParentID  *int64
}

// Kind names a record type: a definition, a scenario value sheet, or a report row.
type Kind string

// Project definitions.
const (
	KindTerminology              Kind = "Terminology"
	KindDistributionType         Kind = "DistributionType"
	KindStratum                  Kind = "Stratum"
	KindSecondaryStratum         Kind = "SecondaryStratum"
	KindStateClass               Kind = "StateClass"
	KindTransitionType           Kind = "TransitionType"
	KindTransitionGroup          Kind = "TransitionGroup"
	KindTransitionTypeGroup      Kind = "TransitionTypeGroup"
	KindTransitionMultiplierType Kind = "TransitionMultiplierType"
	KindAttributeGroup           Kind = "AttributeGroup"
	KindStateAttributeType       Kind = "StateAttributeType"
	KindTransitionAttributeType  Kind = "TransitionAttributeType"
)

// Scenario values.
const (
	KindDistributionValue                       Kind = "DistributionValue"
	KindRunControl                              Kind = "RunControl"
	KindOutputOption                            Kind = "OutputOption"
	KindDeterministicTransition                 Kind = "DeterministicTransition"
	KindTransition                              Kind = "Transition"
	KindInitialConditionsNonSpatial             Kind = "InitialConditionsNonSpatial"
	KindInitialConditionsNonSpatialDistribution Kind = "InitialConditionsNonSpatialDistribution"
	KindInitialConditionsSpatial                Kind = "InitialConditionsSpatial"
	KindTransitionTarget                        Kind = "TransitionTarget"
	KindTransitionMultiplierValue               Kind = "TransitionMultiplierValue"
	KindTransitionSizeDistribution              Kind = "TransitionSizeDistribution"
	KindTransitionSizePrioritization            Kind = "TransitionSizePrioritization"
	KindTransitionSpatialMultiplier             Kind = "TransitionSpatialMultiplier"
	KindStateAttributeValue                     Kind = "StateAttributeValue"
	KindTransitionAttributeValue                Kind = "TransitionAttributeValue"
	KindTransitionAttributeTarget               Kind = "TransitionAttributeTarget"
)

// Report rows.
const (
	KindStateClassSummaryRow             Kind = "StateClassSummaryRow"
	KindTransitionSummaryRow             Kind = "TransitionSummaryRow"
	KindTransitionByStateClassSummaryRow Kind = "TransitionByStateClassSummaryRow"
	KindStateAttributeSummaryRow         Kind = "StateAttributeSummaryRow"
	KindTransitionAttributeSummaryRow    Kind = "TransitionAttributeSummaryRow"
)

// Record is one stored row of any kind. Definitions are project scoped and
// carry a Name unique within (ProjectID, Kind); values carry a ScenarioID;
// report rows carry a ReportID.
type Record struct {
	ID         int64
	Kind       Kind
	ProjectID  int64
	ScenarioID *int64
	ReportID   *int64
	Name       string
	Fields     map[string]any
}

// Report is the container of one report kind for one scenario.
type Report struct {
	ID         int64
	ScenarioID int64
	Kind       string
	CreatedAt  time.Time
}

// ModelStatus is the coarse progress of an async run.
type ModelStatus string

const (
	ModelStatusWaiting    ModelStatus = "waiting"
	ModelStatusStarting   ModelStatus = "starting"
	ModelStatusRunning    ModelStatus = "running"
	ModelStatusProcessing ModelStatus = "processing"
	ModelStatusComplete   ModelStatus = "complete"
	ModelStatusFailed     ModelStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s ModelStatus) IsTerminal() bool {
	return s == ModelStatusComplete || s == ModelStatusFailed
}

// AsyncJob is one run request and its progress.
type AsyncJob struct {
	ID               int64
	UUID             string
	LibraryName      string
	Status           string
	ModelStatus      ModelStatus
	ErrorMessage     string
	Inputs           []byte
	Outputs          []byte
	ParentScenarioID *int64
	ResultScenarioID *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
