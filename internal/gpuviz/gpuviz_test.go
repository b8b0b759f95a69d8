package gpuviz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestParse(t *testing.T) {
	out := "Cluster GPU status\n" +
		"gpu01: GPU [3/8] [■■■□□□□□] CPU 24/64 MEM 128/512 GiB\n" +
		"gpu02  [GPU] [4/4] [■■■■] [CPU] 64/64 [MEM] 500.5/512 GiB\n" +
		"\x1b[32mgpu03\x1b[0m GPU 0/2 □○ CPU 0/0 MEM 0/0 GiB\n" +
		"------------------------------------------\n"

	nodes := Parse(out)
	require.Len(t, nodes, 3)

	assert.Equal(t, Node{
		Name:            "gpu01",
		Slots:           []string{"■", "■", "■", "□", "□", "□", "□", "□"},
		UsedSlots:       3,
		TotalSlots:      8,
		FreeSlots:       5,
		CPUUsagePercent: intPtr(38),
		MemUsagePercent: intPtr(25),
	}, nodes[0])

	assert.Equal(t, "gpu02", nodes[1].Name)
	assert.Equal(t, 0, nodes[1].FreeSlots)
	assert.Equal(t, 100, *nodes[1].CPUUsagePercent)
	assert.Equal(t, 98, *nodes[1].MemUsagePercent)

	assert.Equal(t, "gpu03", nodes[2].Name)
	assert.Equal(t, 2, nodes[2].FreeSlots)
	assert.Nil(t, nodes[2].CPUUsagePercent)
	assert.Nil(t, nodes[2].MemUsagePercent)
	assert.False(t, nodes[2].Placeholder)
}

func TestParseFallsBackToPlaceholder(t *testing.T) {
	for _, out := range []string{
		"",
		"slurm-gres-viz: command not found",
		"Traceback (most recent call last):\n  File \"viz.py\", line 1\n",
	} {
		nodes := Parse(out)
		require.Len(t, nodes, 4)
		for i, n := range nodes {
			assert.Equal(t, []string{"gpu01", "gpu02", "gpu03", "gpu04"}[i], n.Name)
			assert.True(t, n.Placeholder)
			assert.Equal(t, 8, n.TotalSlots)
			assert.Equal(t, n.TotalSlots, n.FreeSlots)
			for _, s := range n.Slots {
				assert.True(t, IsFree(s))
			}
		}
	}
	assert.Nil(t, Match("nothing to see"))
}

func TestIsFree(t *testing.T) {
	for _, m := range []string{"□", "○", "_", "-", ".", "0"} {
		assert.True(t, IsFree(m), m)
	}
	for _, m := range []string{"■", "●", "1", "X", "#", "□□"} {
		assert.False(t, IsFree(m), m)
	}
}

func TestFind(t *testing.T) {
	n, ok := Find(Placeholder(), "gpu03")
	require.True(t, ok)
	assert.Equal(t, "gpu03", n.Name)
	_, ok = Find(Placeholder(), "gpu99")
	assert.False(t, ok)
}
