package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectral/normpipe/core"
)

func TestExtractMetadata_Identifiers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"gost latin", "GOST 12345-2020\nConcrete works", "GOST 12345-2020"},
		{"gost r latin", "approved as GOST R 52085-2003", "GOST R 52085-2003"},
		{"gost cyrillic", "ГОСТ 25100-2020 Грунты", "ГОСТ 25100-2020"},
		{"snip roman", "СНиП II-23-81 Стальные конструкции", "СНиП II-23-81"},
		{"sp cyrillic", "Свод правил СП 70.13330.2012", "СП 70.13330.2012"},
		{"none", "just an ordinary report", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := ExtractMetadata(tt.text)
			assert.Equal(t, tt.want, md.Identifier)
		})
	}
}

func TestExtractMetadata_Version(t *testing.T) {
	md := ExtractMetadata("ГОСТ 25100-2020\nИзменение № 2")
	assert.Equal(t, "ГОСТ 25100-2020", md.Identifier)
	assert.Equal(t, "2", md.Version)
	assert.Equal(t, 2, md.Signals)

	md = ExtractMetadata("Some document, revision 3")
	assert.Equal(t, "3", md.Version)
	assert.Equal(t, 1, md.Signals)
}

func TestExtractMetadata_OnlyInspectsHead(t *testing.T) {
	var body string
	for i := 0; i < headLines; i++ {
		body += "filler line\n"
	}
	body += "GOST 12345-2020 buried deep in the body"

	md := ExtractMetadata(body)
	assert.Empty(t, md.Identifier, "identifiers are title-block metadata")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want core.DocType
	}{
		{"norm by identifier", "ГОСТ 25100-2020\nГрунты. Классификация.", core.DocTypeNorm},
		{"process by marker", "Технологическая карта\nукладка бетонной смеси", core.DocTypeProcess},
		{
			"process by ordered steps",
			"Укладка\n1. подготовить основание\n2. установить опалубку\n3. уложить смесь",
			core.DocTypeProcess,
		},
		{"generic", "Meeting notes from Tuesday.\nNothing normative here.", core.DocTypeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func TestClassify_MarkerBeatsIdentifier(t *testing.T) {
	text := "Технологическая карта по ГОСТ 12345-2020\nсостав работ"
	assert.Equal(t, core.DocTypeProcess, Classify(text))
}

func TestController_Evaluate(t *testing.T) {
	c, err := NewController(WithThresholds(0.7, 0.3))
	require.NoError(t, err)

	assert.Equal(t, VerdictAccept, c.Evaluate(0.9))
	assert.Equal(t, VerdictAccept, c.Evaluate(0.7), "accept threshold is inclusive")
	assert.Equal(t, VerdictFlag, c.Evaluate(0.5))
	assert.Equal(t, VerdictFlag, c.Evaluate(0.3), "reject threshold is exclusive")
	assert.Equal(t, VerdictReject, c.Evaluate(0.29))
}

func TestController_Score(t *testing.T) {
	c, err := NewController()
	require.NoError(t, err)

	full := c.Score(1.0, 40, 0.3, 2)
	assert.Equal(t, 1.0, full, "all components saturated")

	unreadable := c.Score(0.0, 40, 0.3, 2)
	assert.InDelta(t, 0.5, unreadable, 0.001, "coverage dominates")

	bare := c.Score(1.0, 1, 0, 0)
	assert.Less(t, bare, full)
	assert.Greater(t, bare, 0.5)
}

func TestController_ScoreOrdersDocumentsSensibly(t *testing.T) {
	c, err := NewController()
	require.NoError(t, err)

	rich := c.Score(1.0, 25, 0.2, 1)
	poor := c.Score(0.6, 3, 0.01, 0)
	assert.Greater(t, rich, poor)

	assert.Equal(t, VerdictAccept, c.Evaluate(rich))
	assert.NotEqual(t, VerdictAccept, c.Evaluate(poor))
}

func TestWithThresholds_Validation(t *testing.T) {
	_, err := NewController(WithThresholds(0.3, 0.7))
	assert.Error(t, err, "reject above accept")
	_, err = NewController(WithThresholds(1.5, 0.1))
	assert.Error(t, err)
}
