package backend

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/joelkehle/objection-desk/internal/objection"
)

const (
	PathAnalyze            = "/analyze"
	PathLabelScript        = "/label-script"
	PathIdentifyObjections = "/identify-objections"
	PathAnalyzeExpert      = "/analyze-expert"
	PathVerifyObjections   = "/verify-objections"
	PathAnalyzeHearsay     = "/analyze-hearsay"
	PathAnalyzeCharacter   = "/analyze-character-evidence"
)

type LabelRequest struct {
	Script      string `json:"script"`
	CaseType    string `json:"case_type"`
	Side        string `json:"side"`
	ExamType    string `json:"exam_type"`
	WitnessType string `json:"witness_type"`
	Witness     string `json:"witness"`
}

type IdentifyRequest struct {
	Script        string                  `json:"script"`
	LabeledScript objection.LabeledScript `json:"labeled_script"`
	CaseType      string                  `json:"case_type"`
	Side          string                  `json:"side"`
	ExamType      string                  `json:"exam_type"`
	WitnessType   string                  `json:"witness_type"`
	Witness       string                  `json:"witness"`
}

type ExpertRequest struct {
	Script        string                  `json:"script"`
	LabeledScript objection.LabeledScript `json:"labeled_script"`
	Field         string                  `json:"field"`
}

type VerifyRequest struct {
	Objections []objection.VerificationItem `json:"objections"`
	Script     string                       `json:"script"`
}

type HearsayRequest struct {
	HearsaySentences []objection.Objection   `json:"hearsay_sentences"`
	CaseType         string                  `json:"case_type"`
	LabeledScript    objection.LabeledScript `json:"labeled_script"`
	Defendant        string                  `json:"defendant"`
	Side             string                  `json:"side"`
	PartyRep         string                  `json:"p_party_rep"`
}

type CharacterRequest struct {
	CharacterObjections []objection.Objection   `json:"character_objections"`
	LabeledScript       objection.LabeledScript `json:"labeled_script"`
	Side                string                  `json:"side"`
	CaseType            string                  `json:"case_type"`
	IsHomicide          bool                    `json:"is_homicide"`
	Defendant           string                  `json:"defendant"`
	Victim              string                  `json:"victim"`
	CaseTheory          string                  `json:"case_theory"`
}

func (c *Client) LabelScript(ctx context.Context, req LabelRequest) (objection.LabeledScript, error) {
	var resp struct {
		LabeledScript objection.LabeledScript `json:"labeled_script"`
	}
	if err := c.DoJSON(ctx, PathLabelScript, req, &resp); err != nil {
		return nil, err
	}
	if resp.LabeledScript == nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%s: missing labeled_script", PathLabelScript)
	}
	return resp.LabeledScript, nil
}

func (c *Client) IdentifyObjections(ctx context.Context, req IdentifyRequest) ([]objection.Objection, error) {
	var resp struct {
		Objections *[]objection.Objection `json:"objections"`
	}
	if err := c.DoJSON(ctx, PathIdentifyObjections, req, &resp); err != nil {
		return nil, err
	}
	if resp.Objections == nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%s: missing objections", PathIdentifyObjections)
	}
	return *resp.Objections, nil
}

func (c *Client) AnalyzeExpert(ctx context.Context, req ExpertRequest) ([]objection.ExpertFinding, error) {
	var resp *[]objection.ExpertFinding
	if err := c.DoJSON(ctx, PathAnalyzeExpert, req, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%s: expected an array", PathAnalyzeExpert)
	}
	return *resp, nil
}

func (c *Client) VerifyObjections(ctx context.Context, req VerifyRequest) ([]objection.Verdict, error) {
	var resp struct {
		Objections *[]objection.Verdict `json:"objections"`
	}
	if err := c.DoJSON(ctx, PathVerifyObjections, req, &resp); err != nil {
		return nil, err
	}
	if resp.Objections == nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%s: missing objections", PathVerifyObjections)
	}
	return *resp.Objections, nil
}

func (c *Client) AnalyzeHearsay(ctx context.Context, req HearsayRequest) ([]objection.HearsayResult, error) {
	var resp *[]objection.HearsayResult
	if err := c.DoJSON(ctx, PathAnalyzeHearsay, req, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%s: expected an array", PathAnalyzeHearsay)
	}
	return *resp, nil
}

func (c *Client) AnalyzeCharacterEvidence(ctx context.Context, req CharacterRequest) ([]objection.CharacterResult, error) {
	var resp *[]objection.CharacterResult
	if err := c.DoJSON(ctx, PathAnalyzeCharacter, req, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "%s: expected an array", PathAnalyzeCharacter)
	}
	return *resp, nil
}
