// Package settings persists the case context that parameterizes every
// analysis run.
package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Key is the single storage key holding the whole serialized record.
const Key = "caseSettings"

const (
	CaseCriminal = "criminal"
	CaseCivil    = "civil"

	NoVictim = "no victim"
)

var ErrUnknownCaseType = eris.New("unknown case type")

type CaseSettings struct {
	CaseType   string   `json:"caseType"`
	Charges    []string `json:"charges"`
	Defendant  string   `json:"defendant"`
	Victim     string   `json:"victim"`
	CaseTheory string   `json:"caseTheory"`
	PartyRep   string   `json:"p_party_representative"`
	IsHomicide bool     `json:"isHomicide,omitempty"`
}

func Defaults() CaseSettings {
	return CaseSettings{CaseType: CaseCriminal, Charges: []string{}}
}

// EffectiveCaseType falls back to criminal for records written before the
// case type existed.
func (s CaseSettings) EffectiveCaseType() string {
	if strings.TrimSpace(s.CaseType) == "" {
		return CaseCriminal
	}
	return s.CaseType
}

// Homicide reports whether any charge mentions homicide or murder. It is
// derived from the charges at read time rather than trusting the stored flag.
func (s CaseSettings) Homicide() bool {
	return HomicideCharged(s.Charges)
}

// SideLabel is the display name of the moving party for the case type.
func (s CaseSettings) SideLabel() string {
	if s.EffectiveCaseType() == CaseCivil {
		return "Plaintiff"
	}
	return "Prosecution"
}

func HomicideCharged(charges []string) bool {
	for _, c := range charges {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "homicide") || strings.Contains(lc, "murder") {
			return true
		}
	}
	return false
}

// AddCharge appends charge unless an entry equal to it after trimming, ignoring
// case, is already present. The first spelling is kept.
func AddCharge(charges []string, charge string) []string {
	charge = strings.TrimSpace(charge)
	if charge == "" {
		return charges
	}
	for _, c := range charges {
		if strings.EqualFold(strings.TrimSpace(c), charge) {
			return charges
		}
	}
	return append(charges, charge)
}

// Form is the raw settings submission before validation.
type Form struct {
	CaseType   string
	Charges    []string
	Defendant  string
	Victim     string
	CaseTheory string
	PartyRep   string
}

// ValidationError lists every missing required field, in form order.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("please fill in the following required fields: %s", strings.Join(e.Missing, ", "))
}

// Validate checks required fields and builds the record to persist.
func (f Form) Validate() (CaseSettings, error) {
	var charges []string
	for _, c := range f.Charges {
		charges = AddCharge(charges, c)
	}

	var missing []string
	if strings.TrimSpace(f.Defendant) == "" {
		missing = append(missing, "Defendant Name")
	}
	if strings.TrimSpace(f.CaseTheory) == "" {
		missing = append(missing, "Case Theory")
	}
	if len(charges) == 0 {
		missing = append(missing, "Charges/Claims")
	}
	if len(missing) > 0 {
		return CaseSettings{}, &ValidationError{Missing: missing}
	}

	caseType := strings.ToLower(strings.TrimSpace(f.CaseType))
	switch caseType {
	case "":
		caseType = CaseCriminal
	case CaseCriminal, CaseCivil:
	default:
		return CaseSettings{}, eris.Wrapf(ErrUnknownCaseType, "%q", f.CaseType)
	}

	victim := strings.TrimSpace(f.Victim)
	if victim == "" {
		victim = NoVictim
	}
	return CaseSettings{
		CaseType:   caseType,
		Charges:    charges,
		Defendant:  strings.TrimSpace(f.Defendant),
		Victim:     victim,
		CaseTheory: strings.TrimSpace(f.CaseTheory),
		PartyRep:   strings.TrimSpace(f.PartyRep),
		IsHomicide: HomicideCharged(charges),
	}, nil
}

type Store interface {
	Load(ctx context.Context) (CaseSettings, error)
	Save(ctx context.Context, s CaseSettings) error
	Close() error
}

// Open returns the store for a configured backend name ("sqlite" or "file").
func Open(backend, path string) (Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "create settings directory")
		}
	}
	switch backend {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "file":
		return NewFileStore(path), nil
	default:
		return nil, eris.Errorf("unknown settings backend %q", backend)
	}
}

// Submit validates the form and saves it. On validation failure nothing is
// written.
func Submit(ctx context.Context, store Store, f Form) (CaseSettings, error) {
	s, err := f.Validate()
	if err != nil {
		return CaseSettings{}, err
	}
	if err := store.Save(ctx, s); err != nil {
		return CaseSettings{}, err
	}
	return s, nil
}
