package analysis

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Stage is the run status reported to observers. The six work stages run in
// declaration order; Complete and Failed are terminal.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageLabel     Stage = "label"
	StageIdentify  Stage = "identify"
	StageExpert    Stage = "expert"
	StageVerify    Stage = "verify"
	StageHearsay   Stage = "hearsay"
	StageCharacter Stage = "character"
	StageComplete  Stage = "complete"
	StageFailed    Stage = "failed"
)

var stageMessages = map[Stage]string{
	StageIdle:      "Waiting for a script.",
	StageLabel:     "Reading your script...",
	StageIdentify:  "Identifying potential objections...",
	StageExpert:    "Analyzing expert testimony...",
	StageVerify:    "Verifying objections...",
	StageHearsay:   "Analyzing hearsay objections...",
	StageCharacter: "Analyzing character evidence objections...",
	StageComplete:  "Analysis complete!",
	StageFailed:    "Analysis failed.",
}

func (s Stage) Message() string {
	if m, ok := stageMessages[s]; ok {
		return m
	}
	return string(s)
}

func (s Stage) Terminal() bool { return s == StageComplete || s == StageFailed }

// Running reports whether s is one of the six work stages.
func (s Stage) Running() bool {
	switch s {
	case StageLabel, StageIdentify, StageExpert, StageVerify, StageHearsay, StageCharacter:
		return true
	}
	return false
}

const WitnessExpert = "expert witness"

var ErrExpertFieldRequired = eris.New("Expert field is required")

// FormParams are the per-submit examination parameters, captured once so no
// stage reaches back into the form.
type FormParams struct {
	Side        string `json:"side"`
	ExamType    string `json:"exam_type"`
	WitnessType string `json:"witness_type"`
	Witness     string `json:"witness"`
	ExpertField string `json:"expert_field,omitempty"`
}

func (p FormParams) ExpertWitness() bool {
	return strings.EqualFold(strings.TrimSpace(p.WitnessType), WitnessExpert)
}

// Validate fails when an expert witness is selected without a field of
// expertise.
func (p FormParams) Validate() error {
	if p.ExpertWitness() && strings.TrimSpace(p.ExpertField) == "" {
		return ErrExpertFieldRequired
	}
	return nil
}
