package trace

import (
	"bytes"
	"strings"
	"testing"

	"proofdeps/internal/ir"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    ir.Position
		wantErr bool
	}{
		{in: "main.rs @ line 12", want: ir.Position{File: "main.rs", Line: 12}},
		{in: "(src/lib.rs @ line 3)", want: ir.Position{File: "src/lib.rs", Line: 3}},
		{in: "assert x > 0 (main.rs @ line 40)", want: ir.Position{File: "main.rs", Line: 40}},
		{in: "  my file.rs  @ line 7 ", want: ir.Position{File: "my file.rs", Line: 7}},
		{in: "main.rs:12", wantErr: true},
		{in: "main.rs @ line 0", wantErr: true},
		{in: "@ line 5", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePosition(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadPosition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_Classify(t *testing.T) {
	tests := []struct {
		kind    ir.Kind
		subtype string
		v1      ir.Category
		v2      ir.Category
	}{
		{ir.KindAssumption, "Explicit", ir.ExplicitAssumption, ir.ExplicitAssumption},
		{ir.KindAssumption, "Internal", ir.ImplicitAssumption, ir.InternalAssumption},
		{ir.KindAssumption, "Implicit", ir.ImplicitAssumption, ir.ImplicitAssumption},
		{ir.KindAssertion, "explicit", ir.ExplicitAssertion, ir.ExplicitAssertion},
		{ir.KindAssertion, "ImplicitPostcondition", ir.ExplicitAssertion, ir.ExplicitAssertionPostcondition},
		{ir.KindAssertion, "ExplicitPostcondition", ir.ExplicitAssertion, ir.ExplicitAssertionPostcondition},
		{ir.KindAssertion, "Implicit", ir.ImplicitAssertion, ir.ImplicitAssertion},
		{ir.KindInfeasible, "", ir.Infeasible, ir.Infeasible},
		{ir.KindOther, "Explicit", ir.Unknown, ir.Unknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.subtype, func(t *testing.T) {
			assert.Equal(t, tt.v1, SchemaV1.Classify(tt.kind, tt.subtype))
			assert.Equal(t, tt.v2, SchemaV2.Classify(tt.kind, tt.subtype))
		})
	}
}

func TestSchemas(t *testing.T) {
	s, err := Schemas("auto")
	require.NoError(t, err)
	assert.Len(t, s, 2)

	s, err = Schemas("V1")
	require.NoError(t, err)
	assert.Equal(t, []Schema{SchemaV1}, s)

	_, err = Schemas("v9")
	assert.ErrorIs(t, err, ErrUnknownSchema)
}

func TestNodeReader_Read(t *testing.T) {
	input := strings.Join([]string{
		"n1 # Assertion # Explicit # a1 # x > 0 # (main.rs @ line 3)",
		"n2 # Assumption # Explicit # a2 # y # main.rs @ line 1",
		"n3 # Assumption # Internal # a3 # z # proc # main.rs @ line 4",
		"n4 # Assertion # Implicit # a4 # w # nowhere",
		"n5 # Assertion # Implicit # too # few",
		" # Assertion # Implicit # a6 # w # main.rs @ line 9",
		"n1 # Assertion # Explicit # again # x # main.rs @ line 8",
		"",
	}, "\n")

	nr, err := NewNodeReader("auto", nil)
	require.NoError(t, err)

	nodes, report, err := nr.Read(strings.NewReader(input))
	require.NoError(t, err)

	byID := make(map[string]ir.TraceNode)
	for _, n := range nodes {
		byID[n.ID] = n
	}

	require.Contains(t, byID, "n1")
	assert.Equal(t, ir.ExplicitAssertion, byID["n1"].Category)
	assert.Equal(t, ir.Position{File: "main.rs", Line: 3}, byID["n1"].Position)

	assert.Equal(t, ir.ExplicitAssumption, byID["n2"].Category)
	assert.Equal(t, 1, byID["n2"].Position.Line)

	// Seven fields selects v2, which keeps internal assumptions apart.
	assert.Equal(t, ir.InternalAssumption, byID["n3"].Category)

	// Bad position: kept but unplaced.
	require.Contains(t, byID, "n4")
	assert.False(t, byID["n4"].HasPosition)

	assert.NotContains(t, byID, "n5")
	assert.Equal(t, 3, report.Accepted)
	assert.Equal(t, map[RejectReason]int{
		ReasonBadPosition: 1,
		ReasonFieldCount:  1,
		ReasonEmptyID:     1,
		ReasonDuplicateID: 1,
	}, report.Rejected)
	assert.Equal(t, 4, report.RejectedTotal())
}

func TestNodeReader_StrictSchemaRejectsOtherLayouts(t *testing.T) {
	nr, err := NewNodeReader("v1", nil)
	require.NoError(t, err)

	input := "n1 # Assumption # Internal # a # e # proc # main.rs @ line 2\n" +
		"n2 # Assumption # Internal # a # e # main.rs @ line 3\n"
	nodes, report, err := nr.Read(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, nodes, 1)
	assert.Equal(t, "n2", nodes[0].ID)
	assert.Equal(t, ir.ImplicitAssumption, nodes[0].Category)
	assert.Equal(t, 1, report.Rejected[ReasonFieldCount])
}

func TestReadEdges(t *testing.T) {
	input := "source,target,label\n" +
		"n2,n1,used\n" +
		"n3,n1\n" +
		"n4,n1,\"label, with comma\"\n" +
		",n1,empty\n" +
		"n5,n6,x,extra\n"

	edges, report, err := ReadEdges(strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, []ir.TraceEdge{
		{Source: "n2", Target: "n1", Label: "used"},
		{Source: "n4", Target: "n1", Label: "label, with comma"},
	}, edges)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 2, report.Rejected[ReasonFieldCount])
	assert.Equal(t, 1, report.Rejected[ReasonEmptyID])
}

func TestReadEdges_HeaderOnly(t *testing.T) {
	edges, report, err := ReadEdges(strings.NewReader("source,target,label\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, edges)
	assert.Zero(t, report.Accepted)
}

func TestContentEscaping(t *testing.T) {
	t.Run("doubled quotes decode", func(t *testing.T) {
		got, err := UnescapeContent(`"He said ""hi"""`)
		require.NoError(t, err)
		assert.Equal(t, `He said "hi"`, got)
		assert.Equal(t, `"He said ""hi"""`, EscapeContent(got))
	})

	t.Run("round trip", func(t *testing.T) {
		for _, s := range []string{``, `"`, `""`, `a "b" c`, `trailing "`, `,comma, "quoted, value"`, "\ttab"} {
			got, err := UnescapeContent(EscapeContent(s))
			require.NoError(t, err)
			assert.Equal(t, s, got)
		}
	})

	t.Run("lone quote rejected", func(t *testing.T) {
		_, err := UnescapeContent(`"a"b"`)
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("unquoted passes through", func(t *testing.T) {
		got, err := UnescapeContent(`let x = 1;`)
		require.NoError(t, err)
		assert.Equal(t, `let x = 1;`, got)
	})
}

func TestLineContents_WriteRead(t *testing.T) {
	in := []ir.LineContent{
		{Line: 1, Text: `fn main() {`},
		{Line: 2, Text: `    println!("He said \"hi\"");`},
		{Line: 3, Text: `}`},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteLineContents(&buf, in))
	assert.Contains(t, buf.String(), `2,"    println!(""He said \""hi\"""");"`)

	out, report, err := ReadLineContents(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.Equal(t, 3, report.Accepted)
}

func TestReadLineContents_HeaderAndBadRows(t *testing.T) {
	input := "line,content\n1,\"a\"\nx,\"b\"\n3,\"c\"d\"\n4,\"ok\"\n"
	out, report, err := ReadLineContents(strings.NewReader(input), nil)
	require.NoError(t, err)

	assert.Equal(t, []ir.LineContent{{Line: 1, Text: "a"}, {Line: 4, Text: "ok"}}, out)
	assert.Equal(t, 1, report.Rejected[ReasonBadLine])
	assert.Equal(t, 1, report.Rejected[ReasonBadQuoting])
}

func TestReadLineContents_BadFirstRowIsRejected(t *testing.T) {
	t.Run("bad quoting", func(t *testing.T) {
		out, report, err := ReadLineContents(strings.NewReader("1,\"a\"b\"\n2,\"ok\"\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, []ir.LineContent{{Line: 2, Text: "ok"}}, out)
		assert.Equal(t, 1, report.Rejected[ReasonBadQuoting])
	})

	t.Run("non-positive line", func(t *testing.T) {
		out, report, err := ReadLineContents(strings.NewReader("0,\"a\"\n2,\"ok\"\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, []ir.LineContent{{Line: 2, Text: "ok"}}, out)
		assert.Equal(t, 1, report.Rejected[ReasonBadLine])
	})

	t.Run("header after blank lines", func(t *testing.T) {
		out, report, err := ReadLineContents(strings.NewReader("\nline,content\n2,\"ok\"\n"), nil)
		require.NoError(t, err)
		assert.Equal(t, []ir.LineContent{{Line: 2, Text: "ok"}}, out)
		assert.Zero(t, report.RejectedTotal())
	})
}

func TestContentsFromSource(t *testing.T) {
	out, err := ContentsFromSource(strings.NewReader("a\r\nb\n\nd"))
	require.NoError(t, err)
	assert.Equal(t, []ir.LineContent{{Line: 1, Text: "a"}, {Line: 2, Text: "b"}, {Line: 3, Text: ""}, {Line: 4, Text: "d"}}, out)
}
