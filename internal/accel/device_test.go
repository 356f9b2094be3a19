package accel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGPU(t *testing.T, root, busID, model string) {
	t.Helper()
	dir := filepath.Join(root, busID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	info := "Model: \t\t " + model + "\nIRQ:   \t\t 130\nGPU UUID: \t GPU-1234\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "information"), []byte(info), 0o644))
}

func TestProbeDevice_AutoPicksGPU(t *testing.T) {
	root := t.TempDir()
	writeGPU(t, root, "0000:01:00.0", "NVIDIA GeForce RTX 3090")
	writeGPU(t, root, "0000:02:00.0", "NVIDIA A100-SXM4-40GB")

	dev, err := probeDevice(root, PreferAuto, 1)
	require.NoError(t, err)

	assert.Equal(t, domain.DeviceCUDA, dev.Kind)
	assert.Equal(t, "NVIDIA A100-SXM4-40GB", dev.Name)
	assert.True(t, dev.Available)
	assert.True(t, dev.HalfCapable)
}

func TestProbeDevice_AutoFallsBackToCPU(t *testing.T) {
	dev, err := probeDevice(t.TempDir(), PreferAuto, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.DeviceCPU, dev.Kind)
	assert.False(t, dev.Available)
	assert.False(t, dev.HalfCapable)
}

func TestProbeDevice_CUDARequired(t *testing.T) {
	_, err := probeDevice(t.TempDir(), PreferCUDA, 0)
	assert.Error(t, err)
}

func TestProbeDevice_CPUIgnoresGPU(t *testing.T) {
	root := t.TempDir()
	writeGPU(t, root, "0000:01:00.0", "NVIDIA GeForce RTX 3090")

	dev, err := probeDevice(root, PreferCPU, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceCPU, dev.Kind)
}

func TestListGPUs_SkipsUnreadableEntries(t *testing.T) {
	root := t.TempDir()
	writeGPU(t, root, "0000:01:00.0", "NVIDIA T4")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0000:02:00.0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0000:02:00.0", "information"), []byte("IRQ: 1\n"), 0o644))

	assert.Equal(t, []string{"NVIDIA T4"}, listGPUs(root))
}
