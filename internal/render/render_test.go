package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/objection-desk/internal/objection"
)

const transcript = "Q. What happened next?\nA. The witness   saw the car.\nQ. Who told you?\nA. My neighbor said he did it & ran."

func labeled() objection.LabeledScript {
	return objection.LabeledScript{
		"1": "The witness saw the car.",
		"2": "My neighbor said he did it & ran.",
		"3": "This sentence never appears.",
	}
}

func TestRenderWrapsSentenceWithObjectionID(t *testing.T) {
	r := NewRenderer()
	v := r.Render(transcript, labeled(), []objection.Objection{{ID: "a", Sentence: "1", Type: "Hearsay"}}, Options{})

	body := string(v.Body)
	assert.Contains(t, body, `data-objection-id="a"`)
	assert.Contains(t, body, `data-highlight-id="highlight-a"`)
	assert.Contains(t, body, `data-risk-level="none"`)
	assert.Contains(t, body, `>The witness   saw the car.</span>`)
	require.Len(t, v.Highlights, 1)
	assert.True(t, v.Cards[0].Highlighted)
}

func TestRenderMatchesEscapedAmpersand(t *testing.T) {
	r := NewRenderer()
	v := r.Render(transcript, labeled(), []objection.Objection{{ID: "b", Sentence: "2", Type: "Hearsay", RiskLevel: objection.RiskHigh}}, Options{})
	assert.Contains(t, string(v.Body), `class="highlighted-text risk-High"`)
	assert.Contains(t, string(v.Body), `My neighbor said he did it &amp; ran.</span>`)
	assert.Empty(t, v.Unmatched)
}

func TestRenderIsIdempotent(t *testing.T) {
	r := NewRenderer()
	objs := []objection.Objection{
		{ID: "a", Sentence: "1", Type: "Hearsay", Explanation: "**out of court**"},
		{ID: "b", Sentence: "2", Type: "Speculation", RiskLevel: objection.RiskRemoved},
		{ID: "c", Type: "Improper Expert Opinion"},
	}
	first := r.Render(transcript, labeled(), objs, Options{})
	second := r.Render(transcript, labeled(), objs, Options{})

	d1, err := first.DocumentHTML()
	require.NoError(t, err)
	d2, err := second.DocumentHTML()
	require.NoError(t, err)
	c1, err := first.CommentsHTML()
	require.NoError(t, err)
	c2, err := second.CommentsHTML()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, c1, c2)
	assert.Equal(t, 1, strings.Count(string(d1), `data-objection-id="a"`))
}

func TestRenderWithoutSentenceGivesCardOnly(t *testing.T) {
	r := NewRenderer()
	v := r.Render(transcript, labeled(), []objection.Objection{
		{ID: "x", Type: "Improper Expert Opinion", Explanation: "no basis"},
		{ID: "y", Sentence: "3", Type: "Leading"},
	}, Options{})
	require.Len(t, v.Cards, 2)
	assert.Empty(t, v.Highlights)
	assert.NotContains(t, string(v.Body), "<span")
	assert.Equal(t, []string{"y"}, v.Unmatched)
}

func TestCardsFollowObjectionOrder(t *testing.T) {
	r := NewRenderer()
	v := r.Render(transcript, labeled(), []objection.Objection{
		{ID: "second", Sentence: "2", Type: "Hearsay"},
		{ID: "first", Sentence: "1", Type: "Leading"},
	}, Options{})
	assert.Equal(t, "second", v.Cards[0].ObjectionID)
	assert.Equal(t, "first", v.Cards[1].ObjectionID)
}

func TestShowRemovedToggleRevealsOnlyRemoved(t *testing.T) {
	r := NewRenderer()
	objs := []objection.Objection{
		{ID: "a", Sentence: "1", Type: "Hearsay", RiskLevel: objection.RiskHigh},
		{ID: "b", Sentence: "2", Type: "Speculation", RiskLevel: objection.RiskRemoved},
		{ID: "c", Type: "Relevance", RiskLevel: objection.RiskRemoved},
		{ID: "d", Type: "Leading"},
	}
	v := r.Render(transcript, labeled(), objs, Options{})
	hidden := map[string]bool{}
	for _, c := range v.Cards {
		hidden[c.ObjectionID] = c.Hidden
	}
	assert.Equal(t, map[string]bool{"a": false, "b": true, "c": true, "d": false}, hidden)
	assert.Equal(t, []string{"b"}, v.HiddenHighlights())

	before := v.Body
	v.SetShowRemoved(true)
	assert.Equal(t, before, v.Body, "toggle must not re-run matching")
	assert.Len(t, v.VisibleCards(), 4)
	assert.Empty(t, v.HiddenHighlights())

	v.SetShowRemoved(false)
	assert.Len(t, v.VisibleCards(), 2)
}

func TestHearsayCardShowsSampleResponse(t *testing.T) {
	r := NewRenderer()
	objs := objection.MergeHearsay([]objection.Objection{{ID: "a", Sentence: "2", Type: "Hearsay", Explanation: "x"}},
		[]objection.HearsayResult{{ID: "a", HearsayType: "Statement Against Interest", ExceptionType: "803(b)", Explanation: "liability", Response: "Offered against interest."}})
	v := r.Render(transcript, labeled(), objs, Options{})
	c := v.Cards[0]
	assert.Equal(t, "Statement Against Interest", c.Title)
	assert.True(t, c.HasResponse)
	assert.True(t, c.ResponseControlVisible)
	assert.Contains(t, string(c.ExplanationHTML), "Exception: 803(b)")

	html, err := v.CommentsHTML()
	require.NoError(t, err)
	assert.Contains(t, string(html), `class="sample-response-btn"`)
	assert.Contains(t, string(html), "Offered against interest.")
}

func TestActivateIsExclusive(t *testing.T) {
	r := NewRenderer()
	objs := []objection.Objection{
		{ID: "a", Sentence: "1", Type: "Hearsay", Response: "resp a"},
		{ID: "b", Sentence: "2", Type: "Hearsay", Response: "resp b"},
	}
	v := r.Render(transcript, labeled(), objs, Options{Active: "a"})
	assert.True(t, v.Cards[0].Active)
	assert.False(t, v.Cards[1].Active)
	assert.Equal(t, "highlight-a", v.ActiveHighlightID())

	require.True(t, v.Activate("b"))
	assert.False(t, v.Cards[0].Active)
	assert.False(t, v.Cards[0].ResponseControlVisible)
	assert.True(t, v.Cards[1].Active)
	assert.True(t, v.Cards[1].ResponseControlVisible)
	assert.Equal(t, "highlight-b", v.ActiveHighlightID())

	assert.False(t, v.Activate("missing"))
	assert.Equal(t, "b", v.Active)
}

func TestMarkdownSuppressesRawHTML(t *testing.T) {
	r := NewRenderer()
	v := r.Render(transcript, labeled(), []objection.Objection{{ID: "a", Type: "Hearsay", Explanation: "<script>alert(1)</script>\nline two"}}, Options{})
	assert.NotContains(t, string(v.Cards[0].ExplanationHTML), "<script>")
}

func TestDocumentEscapesTranscriptMarkup(t *testing.T) {
	r := NewRenderer()
	v := r.Render("A. <b>bold</b> claim.", nil, nil, Options{})
	assert.Equal(t, "A. &lt;b&gt;bold&lt;/b&gt; claim.", string(v.Body))
}

func TestRenderMatchesAcrossUnicodeComposition(t *testing.T) {
	r := NewRenderer()
	doc := "Q. Where?\nA. At the cafe\u0301 on Main."
	lab := objection.LabeledScript{"1": "At the caf\u00e9 on Main."}
	v := r.Render(doc, lab, []objection.Objection{{ID: "a", Sentence: "1", Type: "Relevance"}}, Options{})

	require.Len(t, v.Highlights, 1)
	assert.Empty(t, v.Unmatched)
	assert.Contains(t, string(v.Body), `data-objection-id="a"`)
}

func TestHiddenRemovedCardCannotBeActivated(t *testing.T) {
	r := NewRenderer()
	objs := []objection.Objection{
		{ID: "a", Sentence: "1", Type: "Hearsay", RiskLevel: objection.RiskHigh},
		{ID: "b", Sentence: "2", Type: "Speculation", RiskLevel: objection.RiskRemoved},
	}
	v := r.Render(transcript, labeled(), objs, Options{Active: "b"})
	assert.Empty(t, v.Active)
	assert.Empty(t, v.ActiveHighlightID())

	assert.False(t, v.Activate("b"))
	assert.Empty(t, v.ActiveHighlightID())

	v.SetShowRemoved(true)
	require.True(t, v.Activate("b"))
	assert.Equal(t, "highlight-b", v.ActiveHighlightID())

	// Hiding Removed cards again drops the activation.
	v.SetShowRemoved(false)
	assert.Empty(t, v.Active)
	assert.Empty(t, v.ActiveHighlightID())
	for _, c := range v.Cards {
		assert.False(t, c.Active, c.ObjectionID)
	}
}
