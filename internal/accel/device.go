// Package accel provides the runtimes that turn model weights into executable sessions
// and the probe that decides which device they run on.
package accel

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

const nvidiaProcRoot = "/proc/driver/nvidia/gpus"

// Device preferences accepted by ProbeDevice.
const (
	PreferAuto = "auto"
	PreferCUDA = "cuda"
	PreferCPU  = "cpu"
)

// ProbeDevice picks the accelerator for pref. "auto" uses the GPU at deviceID when the NVIDIA
// driver exposes one, "cuda" requires it, and "cpu" never looks.
func ProbeDevice(pref string, deviceID int) (domain.Device, error) {
	return probeDevice(nvidiaProcRoot, pref, deviceID)
}

func probeDevice(procRoot, pref string, deviceID int) (domain.Device, error) {
	dev := domain.Device{Kind: domain.DeviceCPU}
	dev.CPUModel, dev.HostMemoryBytes = hostInfo()

	if pref == PreferCPU {
		return dev, nil
	}

	gpus := listGPUs(procRoot)
	if deviceID < 0 || deviceID >= len(gpus) {
		if pref == PreferCUDA {
			return domain.Device{}, fmt.Errorf("cuda device %d not found (%d visible)", deviceID, len(gpus))
		}
		return dev, nil
	}

	dev.Kind = domain.DeviceCUDA
	dev.Name = gpus[deviceID]
	dev.Available = true
	dev.HalfCapable = true
	return dev, nil
}

// listGPUs returns the model names of the GPUs the NVIDIA driver reports, ordered by bus id.
func listGPUs(procRoot string) []string {
	dirs, err := filepath.Glob(filepath.Join(procRoot, "*", "information"))
	if err != nil || len(dirs) == 0 {
		return nil
	}
	sort.Strings(dirs)

	names := make([]string, 0, len(dirs))
	for _, path := range dirs {
		name, err := readGPUModel(path)
		if err != nil {
			slog.Warn("Failed to read GPU information", "path", path, "error", err)
			continue
		}
		names = append(names, name)
	}
	return names
}

func readGPUModel(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(key) == "Model" {
			return strings.TrimSpace(value), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no Model line")
}

func hostInfo() (string, uint64) {
	var model string
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		model = infos[0].ModelName
	}

	var total uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		total = vm.Total
	}
	return model, total
}
