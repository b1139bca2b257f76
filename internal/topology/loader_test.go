package topology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopology(t *testing.T) {
	raw, err := Parse([]byte(`
implementations:
  - type: sim900.mainframe
    config:
      port: /dev/ttyUSB0
      gpib_address: 2
    modules:
      3:
        type: sim900.sim928
        config:
          settling_time_ms: 400
      5:
        type: sim900.sim970
        config:
          channel: 1
  - type: keysight.cnt53220a
    config:
      address: 10.7.0.120
`))
	require.NoError(t, err)
	require.Len(t, raw.Implementations, 2)

	mf := raw.Implementations[0]
	assert.Equal(t, "sim900.mainframe", mf.Type)
	assert.Equal(t, "/dev/ttyUSB0", mf.Config["port"])
	assert.Equal(t, 2, mf.Config["gpib_address"])

	require.Len(t, mf.Modules, 2)
	assert.Equal(t, "3", mf.Modules[0].Slot)
	assert.Equal(t, "sim900.sim928", mf.Modules[0].Type)
	assert.Equal(t, 400, mf.Modules[0].Config["settling_time_ms"])
	assert.Equal(t, "5", mf.Modules[1].Slot)

	assert.Empty(t, raw.Implementations[1].Modules)
}

func TestParsePreservesDuplicateSlotKeys(t *testing.T) {
	raw, err := Parse([]byte(`
implementations:
  - type: sim900.mainframe
    config: {port: /dev/ttyUSB0}
    modules:
      3: {type: sim900.sim928}
      3: {type: sim900.sim970}
`))
	require.NoError(t, err)
	require.Len(t, raw.Implementations, 1)

	mods := raw.Implementations[0].Modules
	require.Len(t, mods, 2, "duplicate slot keys must survive decoding")
	assert.Equal(t, "3", mods[0].Slot)
	assert.Equal(t, "3", mods[1].Slot)
}

func TestParseEmptyDocument(t *testing.T) {
	raw, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, raw.Implementations)
}

func TestParseRejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("- just\n- a\n- list\n"))
	assert.ErrorContains(t, err, "not a mapping")
}

func TestParseRejectsScalarModules(t *testing.T) {
	_, err := Parse([]byte(`
implementations:
  - type: sim900.mainframe
    modules: nope
`))
	assert.ErrorContains(t, err, "modules is not a mapping")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
implementations:
  - type: dummy.volt
`), 0o644))

	raw, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, raw.Implementations, 1)
	assert.Equal(t, "dummy.volt", raw.Implementations[0].Type)

	_, err = LoadFile(filepath.Join(dir, "missing.yml"))
	assert.ErrorContains(t, err, "read topology file")
}
