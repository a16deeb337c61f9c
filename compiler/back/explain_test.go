package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxlang/nxcc/compiler/burs"
	"github.com/nxlang/nxcc/compiler/parse"
)

func TestExplain(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()

	u, err := parse.Parse(ctx, "test.ir", []byte(`
func f
vreg a char
vreg b char
vreg c char
ASGNI1(VREGP c, ADDI1(INDIRI1(VREGP a), INDIRI1(VREGP b)))
RETV
end
`), cfg.Types)
	require.NoError(t, err)

	c, err := New(cfg)
	require.NoError(t, err)

	sels, err := c.Explain(ctx, u)
	require.NoError(t, err)
	require.Len(t, sels, 2)

	s := sels[0]
	assert.Equal(t, "f", s.Func)
	assert.Equal(t, 0, s.Index)

	var add *Choice

	for i, ch := range s.Choices {
		if ch.Op.String() == "ADDI1" {
			add = &s.Choices[i]
		}

		if i == 0 {
			assert.Equal(t, 0, ch.Depth)
			assert.Equal(t, "stmt", ch.Goal)
			assert.Equal(t, s.Cost, ch.Cost)
		}
	}

	require.NotNil(t, add)
	assert.Equal(t, "reg: ADDI1(reg,reg)", add.Rule.Text)
	assert.Equal(t, burs.Cost(10), add.Cost)

	assert.Equal(t, burs.Cost(0), sels[1].Cost)
}

func TestCostliest(t *testing.T) {
	sels := []Selection{
		{Func: "f", Index: 0, Cost: 3},
		{Func: "f", Index: 1, Cost: 10},
		{Func: "f", Index: 2, Cost: 1},
		{Func: "f", Index: 3, Cost: 10},
		{Func: "f", Index: 4, Cost: 7},
	}

	top := Costliest(sels, 3)
	require.Len(t, top, 3)

	assert.Equal(t, 1, top[0].Index)
	assert.Equal(t, 3, top[1].Index)
	assert.Equal(t, 4, top[2].Index)

	assert.Len(t, Costliest(sels, 10), 5)
	assert.Empty(t, Costliest(nil, 3))
}
