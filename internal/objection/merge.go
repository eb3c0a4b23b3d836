package objection

import (
	"fmt"
	"strconv"
)

// Clone deep-copies a collection so snapshots handed to renderers cannot be
// mutated by later stages.
func Clone(objs []Objection) []Objection {
	if objs == nil {
		return nil
	}
	out := make([]Objection, len(objs))
	for i, o := range objs {
		if o.HearsayAnalysis != nil {
			ha := *o.HearsayAnalysis
			o.HearsayAnalysis = &ha
		}
		out[i] = o
	}
	return out
}

// AppendExpertFindings synthesizes one record per referenced sentence. Ids
// stay unique: when a sentence is cited again the later finding replaces the
// earlier record in place.
func AppendExpertFindings(objs []Objection, findings []ExpertFinding) []Objection {
	out := Clone(objs)
	index := make(map[string]int, len(out))
	for i, o := range out {
		index[o.ID] = i
	}
	for _, f := range findings {
		for _, n := range f.Conclusion {
			rec := Objection{
				ID:          ExpertID(n),
				Sentence:    SentenceRef(strconv.Itoa(n)),
				Explanation: f.Explanation,
			}
			if f.Admissible {
				rec.Type = TypeAdmissibleExpert
				rec.RiskLevel = RiskLow
			} else {
				rec.Type = TypeImproperExpert
				rec.RiskLevel = RiskHigh
			}
			if i, ok := index[rec.ID]; ok {
				out[i] = rec
				continue
			}
			index[rec.ID] = len(out)
			out = append(out, rec)
		}
	}
	return out
}

func ExpertID(sentence int) string {
	return fmt.Sprintf("expert-%d", sentence)
}

// MergeVerification applies risk assessments by id. Records with no verdict
// are returned unchanged.
func MergeVerification(objs []Objection, verdicts []Verdict) []Objection {
	byID := make(map[string]Verdict, len(verdicts))
	for _, v := range verdicts {
		byID[v.ID] = v
	}
	out := Clone(objs)
	for i := range out {
		v, ok := byID[out[i].ID]
		if !ok {
			continue
		}
		out[i].RiskLevel = v.RiskLevel
		out[i].RiskExplanation = v.Explanation
	}
	return out
}

// MergeHearsay overwrites type, title and explanation with the hearsay-specific
// values and attaches the structured analysis. Risk fields are untouched.
func MergeHearsay(objs []Objection, results []HearsayResult) []Objection {
	byID := make(map[string]HearsayResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	out := Clone(objs)
	for i := range out {
		r, ok := byID[out[i].ID]
		if !ok {
			continue
		}
		o := &out[i]
		if r.HearsayType != "" {
			o.Type = r.HearsayType
		}
		o.Title = o.Type
		if r.Explanation != "" {
			o.Explanation = r.Explanation
		}
		o.Response = r.Response
		o.HearsayAnalysis = &HearsayAnalysis{
			Type:          r.HearsayType,
			Explanation:   r.Explanation,
			ExceptionType: r.ExceptionType,
			Response:      r.Response,
		}
	}
	return out
}

// MergeCharacter applies character-evidence results by id, keeping the risk
// level assigned during verification.
func MergeCharacter(objs []Objection, results []CharacterResult) []Objection {
	byID := make(map[string]CharacterResult, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	out := Clone(objs)
	for i := range out {
		r, ok := byID[out[i].ID]
		if !ok {
			continue
		}
		o := &out[i]
		if r.Type != "" {
			o.Type = r.Type
		}
		if r.Explanation != "" {
			o.Explanation = r.Explanation
		}
		o.Response = r.Response
	}
	return out
}

func HearsaySubset(objs []Objection) []Objection {
	var out []Objection
	for _, o := range objs {
		if o.IsHearsay() {
			out = append(out, o)
		}
	}
	return Clone(out)
}

func CharacterSubset(objs []Objection) []Objection {
	var out []Objection
	for _, o := range objs {
		if o.IsCharacter() {
			out = append(out, o)
		}
	}
	return Clone(out)
}

// VerificationItem is the trimmed projection sent to the verification stage.
type VerificationItem struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Sentence    SentenceRef `json:"sentence"`
	Explanation string      `json:"explanation"`
}

func VerificationItems(objs []Objection) []VerificationItem {
	out := make([]VerificationItem, 0, len(objs))
	for _, o := range objs {
		out = append(out, VerificationItem{ID: o.ID, Type: o.Type, Sentence: o.Sentence, Explanation: o.Explanation})
	}
	return out
}
