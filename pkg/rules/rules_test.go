package rules

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sectionStub struct {
	exists bool
	blocks map[string]bool
}

func (s sectionStub) Exists() bool              { return s.exists }
func (s sectionStub) HasBlock(name string) bool { return s.blocks[name] }

func TestParseConditionEval(t *testing.T) {
	section := sectionStub{exists: true, blocks: map[string]bool{"summary": true}}

	cases := []struct {
		src  string
		want bool
	}{
		{`section`, true},
		{`hasBlock("summary")`, true},
		{`hasBlock("efficacy")`, false},
		{`!hasBlock("efficacy")`, true},
		{`section && !hasBlock("efficacy")`, true},
		{`section && hasBlock("efficacy")`, false},
		{`hasBlock("efficacy") || hasBlock("summary")`, true},
		{`section && (hasBlock("efficacy") || hasBlock("summary"))`, true},
		{`!(section && hasBlock("summary"))`, false},
		{`hasBlock(summary)`, true},
	}
	for _, tc := range cases {
		cond, err := ParseCondition(tc.src)
		require.NoError(t, err, tc.src)
		require.Equal(t, tc.want, cond.Eval(section), tc.src)
	}
}

func TestConditionAgainstMissingSection(t *testing.T) {
	missing := sectionStub{exists: false, blocks: map[string]bool{"summary": true}}

	cond, err := ParseCondition(`section && hasBlock("summary")`)
	require.NoError(t, err)
	require.False(t, cond.Eval(missing))

	// hasBlock is false for a section that does not exist.
	cond, err = ParseCondition(`hasBlock("summary")`)
	require.NoError(t, err)
	require.False(t, cond.Eval(missing))
}

func TestParseConditionErrors(t *testing.T) {
	for _, src := range []string{
		``,
		`section &&`,
		`section & hasBlock("x")`,
		`hasBlock(`,
		`hasBlock()`,
		`unknownPredicate("x")`,
		`section) extra`,
		`hasBlock("unterminated`,
		`exec("rm -rf /")`,
	} {
		_, err := ParseCondition(src)
		require.Error(t, err, src)
	}
}

func TestParseAction(t *testing.T) {
	action, err := ParseAction(`pullBlock("CLINICAL_STUDY", "efficacy")`)
	require.NoError(t, err)
	require.Equal(t, "CLINICAL_STUDY", action.SourceType)
	require.Equal(t, "efficacy", action.BlockID)

	action, err = ParseAction(`pullBlock(REPORT, safety-overview)`)
	require.NoError(t, err)
	require.Equal(t, "REPORT", action.SourceType)
	require.Equal(t, "safety-overview", action.BlockID)
}

func TestParseActionErrors(t *testing.T) {
	for _, src := range []string{
		``,
		`pullBlock()`,
		`pullBlock("only-one")`,
		`pushBlock("a", "b")`,
		`pullBlock("a", "b") && section`,
	} {
		_, err := ParseAction(src)
		require.Error(t, err, src)
	}
}
