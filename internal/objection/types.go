package objection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskHigh    RiskLevel = "High"
	RiskRemoved RiskLevel = "Removed"

	// RiskNone is the display label for records the verification stage never scored.
	RiskNone = "none"
)

const (
	TypeAdmissibleExpert = "Admissible Expert Opinion"
	TypeImproperExpert   = "Improper Expert Opinion"
)

// SentenceRef addresses one entry of a LabeledScript. The backend emits it
// either as a JSON string or a bare number; both decode to the string key.
type SentenceRef string

func (r *SentenceRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = SentenceRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("sentence reference: %w", err)
	}
	*r = SentenceRef(n.String())
	return nil
}

func (r SentenceRef) Empty() bool { return strings.TrimSpace(string(r)) == "" }

type HearsayAnalysis struct {
	Type          string `json:"type"`
	Explanation   string `json:"explanation"`
	ExceptionType string `json:"exception_type,omitempty"`
	Response      string `json:"response,omitempty"`
}

// Objection is one backend annotation tied to a sentence of the labeled script.
// Stages enrich it in place; Id is the only merge key.
type Objection struct {
	ID              string           `json:"id"`
	Sentence        SentenceRef      `json:"sentence,omitempty"`
	Type            string           `json:"type"`
	Title           string           `json:"title,omitempty"`
	Explanation     string           `json:"explanation"`
	RiskLevel       RiskLevel        `json:"riskLevel,omitempty"`
	RiskExplanation string           `json:"riskExplanation,omitempty"`
	Response        string           `json:"response,omitempty"`
	HearsayAnalysis *HearsayAnalysis `json:"hearsay_analysis,omitempty"`
}

// RiskLabel returns the risk level or "none" when unset.
func (o Objection) RiskLabel() string {
	if strings.TrimSpace(string(o.RiskLevel)) == "" {
		return RiskNone
	}
	return string(o.RiskLevel)
}

func (o Objection) Removed() bool { return o.RiskLevel == RiskRemoved }

func (o Objection) IsHearsay() bool {
	return strings.EqualFold(strings.TrimSpace(o.Type), "hearsay")
}

func (o Objection) IsCharacter() bool {
	return strings.Contains(strings.ToLower(o.Type), "character")
}

// LabeledScript maps sentence index to literal sentence text. It is produced
// once per run by the labeling stage and never modified afterwards.
type LabeledScript map[string]string

func (l LabeledScript) Text(ref SentenceRef) (string, bool) {
	if ref.Empty() || l == nil {
		return "", false
	}
	text, ok := l[strings.TrimSpace(string(ref))]
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

func (l LabeledScript) Clone() LabeledScript {
	if l == nil {
		return nil
	}
	out := make(LabeledScript, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Conclusion lists the sentence numbers an expert finding refers to. The
// backend sends a single number or an array.
type Conclusion []int

func (c *Conclusion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = nil
		return nil
	}
	if data[0] == '[' {
		var raw []json.Number
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("conclusion list: %w", err)
		}
		out := make([]int, 0, len(raw))
		for _, n := range raw {
			v, err := strconv.Atoi(n.String())
			if err != nil {
				return fmt.Errorf("conclusion sentence %q: %w", n, err)
			}
			out = append(out, v)
		}
		*c = out
		return nil
	}
	var n json.Number
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n = json.Number(strings.TrimSpace(s))
	} else if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("conclusion: %w", err)
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return fmt.Errorf("conclusion sentence %q: %w", n, err)
	}
	*c = Conclusion{v}
	return nil
}

type ExpertFinding struct {
	Conclusion  Conclusion `json:"conclusion"`
	Admissible  bool       `json:"admissible"`
	Explanation string     `json:"explanation"`
}

type Verdict struct {
	ID          string    `json:"id"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Explanation string    `json:"explanation"`
}

type HearsayResult struct {
	ID            string `json:"id"`
	HearsayType   string `json:"hearsay_type"`
	ExceptionType string `json:"exception_type,omitempty"`
	Explanation   string `json:"explanation"`
	Response      string `json:"response"`
}

type CharacterResult struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Explanation string `json:"explanation"`
	Response    string `json:"response"`
}
