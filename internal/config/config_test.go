package config

// ═══════════════════════════════════════════════════════════════════════
// Config builder
// ───────────────────────────────────────────────────────────────────────
// WHAT WE'RE TESTING:
// The fluent Builder produces a working Default() config, overrides
// chain correctly, and Build() panics on the internally-inconsistent
// configs it's documented to reject.
// ═══════════════════════════════════════════════════════════════════════

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsWellFormed(t *testing.T) {
	cfg := Default()
	require.Equal(t, cfg.NumExecPorts, len(cfg.PortFUs), "NumExecPorts must match len(PortFUs)")
	assert.Positive(t, cfg.ROBSize)
	assert.Positive(t, cfg.LDQSize)
	assert.Positive(t, cfg.STQSize)
}

func TestBuilder_OverridesChain(t *testing.T) {
	cfg := New().
		ROBSize(64).
		CommitWidth(2).
		MemDepPolicy(MemDepAlwaysWait).
		Fusion(false, 1).
		Build()

	require.Equal(t, 64, cfg.ROBSize)
	require.Equal(t, 2, cfg.CommitWidth)
	require.Equal(t, MemDepAlwaysWait, cfg.MemDep)
	assert.False(t, cfg.FusionEnabled)
	assert.Equal(t, 1, cfg.FusionMaxSize)
}

func TestBuild_PanicsOnPortMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Build must panic when NumExecPorts doesn't match len(PortFUs)")
		}
	}()
	b := New()
	b.cfg.PortFUs = b.cfg.PortFUs[:1] // now mismatched against NumExecPorts
	b.Build()
}

func TestBuild_PanicsOnNonPositiveQueueSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Build must panic on a non-positive LDQSize")
		}
	}()
	New().LDQSize(0).Build()
}

func TestBuilder_ReturnsFreshConfigPerBuild(t *testing.T) {
	b := New()
	a := b.ROBSize(10).Build()
	b.ROBSize(20)
	require.Equal(t, 10, a.ROBSize, "Build() must snapshot the config, unaffected by later builder calls")
}
