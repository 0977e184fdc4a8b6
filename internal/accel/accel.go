// Package accel implements C16: probing the host for compute devices
// (CPU always, GPU via a Vulkan-like API, NPU via a vendor runtime),
// benchmarking each with a fixed matrix multiply, and ranking them by
// measured throughput. The resulting DeviceProfile is cached on disk
// with a 24h TTL and used by AssignDevice to pick a device for a given
// model path, honoring explicit preference and battery/thermal gates
// before falling back to a quantization-keyword heuristic.
package accel

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/Ishabdullah/genesis/internal/localmodel"
	"github.com/Ishabdullah/genesis/internal/store"
	"github.com/Ishabdullah/genesis/internal/types"
)

const (
	batteryThresholdPct = 20.0
	tempThresholdC      = 70.0
	benchSize           = 256
	profileTTL          = 24 * time.Hour
)

// Manager owns device detection, benchmarking, and device assignment.
type Manager struct {
	st *store.Store
}

// New builds a Manager persisting its profile through st.
func New(st *store.Store) *Manager {
	return &Manager{st: st}
}

// GetProfile returns the cached profile if younger than profileTTL,
// otherwise runs detection and benchmarks and persists the result.
func (m *Manager) GetProfile(ctx context.Context, force bool) (types.DeviceProfile, error) {
	if !force {
		var cached types.DeviceProfile
		if err := m.st.Load(store.PathDeviceProfile, &cached); err != nil {
			return types.DeviceProfile{}, err
		}
		if !cached.CachedAt.IsZero() && time.Since(cached.CachedAt) < profileTTL {
			return cached, nil
		}
	}
	profile := m.runBenchmarks(ctx)
	if err := m.st.Save(store.PathDeviceProfile, profile); err != nil {
		log.Printf("[ACCEL] WARNING: could not persist device profile: %v", err)
	}
	return profile, nil
}

// runBenchmarks detects every device class, benchmarks the ones found,
// and ranks them by measured GFLOPS descending.
func (m *Manager) runBenchmarks(ctx context.Context) types.DeviceProfile {
	detected := map[string]bool{
		"cpu": true,
		"gpu": detectVulkan(),
		"npu": detectNPU(),
	}

	benchmarks := map[string]float64{
		"cpu": benchmarkCPU(benchSize),
	}
	if detected["gpu"] {
		// No Vulkan compute pipeline is built in this port; the figure
		// below is a placeholder estimate carried over from the
		// original mock (vendor mobile GPUs of this class), not a
		// measurement. See DESIGN.md.
		benchmarks["gpu"] = 300.0
	}
	if detected["npu"] {
		benchmarks["npu"] = 500.0
	}

	ranked := make([]string, 0, len(benchmarks))
	for dev := range benchmarks {
		ranked = append(ranked, dev)
	}
	sort.Slice(ranked, func(i, j int) bool { return benchmarks[ranked[i]] > benchmarks[ranked[j]] })

	battery := readBatteryPct()
	temp := readCPUTempC()
	thermal := types.ThermalNormal
	if temp > tempThresholdC {
		thermal = types.ThermalHot
	}

	return types.DeviceProfile{
		Detected:     detected,
		Benchmarks:   benchmarks,
		Ranked:       ranked,
		BatteryPct:   battery,
		CPUTempC:     temp,
		ThermalState: thermal,
		CachedAt:     time.Now(),
	}
}

// benchmarkCPU times a benchSize x benchSize float64 matrix multiply
// and converts the elapsed time to GFLOPS. This is the one real
// measurement in the profile; GPU and NPU figures are placeholders
// (see runBenchmarks).
func benchmarkCPU(size int) float64 {
	a := make([][]float64, size)
	b := make([][]float64, size)
	for i := range a {
		a[i] = make([]float64, size)
		b[i] = make([]float64, size)
		for j := range a[i] {
			a[i][j] = float64((i + j) % 7)
			b[i][j] = float64((i - j) % 5)
		}
	}

	start := time.Now()
	c := make([][]float64, size)
	for i := 0; i < size; i++ {
		c[i] = make([]float64, size)
		for k := 0; k < size; k++ {
			aik := a[i][k]
			if aik == 0 {
				continue
			}
			for j := 0; j < size; j++ {
				c[i][j] += aik * b[k][j]
			}
		}
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-9
	}

	flops := 2.0 * float64(size) * float64(size) * float64(size)
	return flops / elapsed / 1e9
}

// detectVulkan looks for a Vulkan loader the way the original detects
// one on Android/Linux: an ICD env var, a CLI probe binary, or one of
// the well-known shared library locations.
func detectVulkan() bool {
	if os.Getenv("VK_ICD_FILENAMES") != "" {
		return true
	}
	if _, err := exec.LookPath("vulkaninfo"); err == nil {
		return true
	}
	for _, p := range []string{
		"/usr/lib/x86_64-linux-gnu/libvulkan.so.1",
		"/usr/lib/libvulkan.so.1",
		"/system/vendor/lib64/libvulkan.so",
		"/system/lib64/libvulkan.so",
	} {
		if fileExists(p) {
			return true
		}
	}
	return false
}

// detectNPU looks for a vendor NPU runtime (Qualcomm QNN/Hexagon being
// the reference target) via its SDK root env var, a runner binary on
// PATH, or known library locations.
func detectNPU() bool {
	if os.Getenv("QNN_SDK_ROOT") != "" {
		return true
	}
	for _, bin := range []string{"qnn-net-run", "qnn-platform-validator"} {
		if _, err := exec.LookPath(bin); err == nil {
			return true
		}
	}
	for _, p := range []string{
		"/system/vendor/lib64/libQnnHtp.so",
		"/system/lib64/libQnnHtp.so",
		"/vendor/lib64/libcdsprpc.so",
	} {
		if fileExists(p) {
			return true
		}
	}
	return false
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// readBatteryPct reads the first power supply's capacity under
// /sys/class/power_supply, assuming mains-powered (100%) when nothing
// is found — the same "assume full if undetectable" fallback the
// original uses.
func readBatteryPct() float64 {
	matches, err := filepath.Glob("/sys/class/power_supply/*/capacity")
	if err != nil || len(matches) == 0 {
		return 100.0
	}
	for _, p := range matches {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if pct, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			return float64(pct)
		}
	}
	return 100.0
}

// readCPUTempC reads the first thermal zone's temperature (millidegrees
// C), defaulting to a benign 50.0 when no zone is readable.
func readCPUTempC() float64 {
	matches, err := filepath.Glob("/sys/class/thermal/thermal_zone*/temp")
	if err != nil || len(matches) == 0 {
		return 50.0
	}
	for _, p := range matches {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		millideg, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			continue
		}
		return float64(millideg) / 1000.0
	}
	return 50.0
}

// CPUInfo reports logical core count and clock speed, used only for
// diagnostics (#performance); it has no bearing on ranking.
func CPUInfo(ctx context.Context) (cores int, mhz float64) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		n = 1
	}
	infos, err := cpu.InfoWithContext(ctx)
	if err == nil && len(infos) > 0 {
		mhz = infos[0].Mhz
	}
	return n, mhz
}

// AssignDevice picks a device for modelPath given an explicit
// preference ("auto" or empty defer to the heuristic below). Ordering
// matches the original: an explicit, valid preference always wins —
// assignDevice(p, "cpu") must return "cpu" no matter what the profile
// says, since "cpu" is always in Ranked — before the battery/thermal
// gates are consulted, before those force CPU, and before the
// quantization heuristic picks among what's left.
func AssignDevice(profile types.DeviceProfile, modelPath, preference string) string {
	if preference != "" && preference != "auto" && containsStr(profile.Ranked, preference) {
		return preference
	}
	if profile.BatteryPct < batteryThresholdPct || profile.CPUTempC > tempThresholdC {
		return "cpu"
	}

	lower := strings.ToLower(modelPath)
	switch {
	case containsAny(lower, "int8", "q4_", "q8_", "int4"):
		return firstAvailable(profile.Ranked, "npu", "gpu", "cpu")
	case containsAny(lower, "fp16", "f16"):
		return firstAvailable(profile.Ranked, "gpu", "cpu")
	default:
		if len(profile.Ranked) > 0 {
			return profile.Ranked[0]
		}
		return "cpu"
	}
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// firstAvailable returns the first of preferenceOrder that appears in
// ranked, falling back to "cpu" (always present) if none match.
func firstAvailable(ranked []string, preferenceOrder ...string) string {
	for _, want := range preferenceOrder {
		if containsStr(ranked, want) {
			return want
		}
	}
	return "cpu"
}

// RunInference runs lm.Generate on the device assigned for modelPath,
// hinting the child process via GENESIS_DEVICE, and on failure walks
// down the rest of profile.Ranked retrying once per remaining device.
// The original spawns a distinct binary per device; this port has one
// configurable child-process adapter (internal/localmodel), so the
// device hint is passed as an environment variable the adapter's
// binary may branch on instead of selecting a different binary.
func RunInference(ctx context.Context, lm localmodel.LocalModel, profile types.DeviceProfile, modelPath, preference, prompt string, params localmodel.Params) (types.LocalResponse, string, error) {
	assigned := AssignDevice(profile, modelPath, preference)

	tried := map[string]bool{}
	order := append([]string{assigned}, profile.Ranked...)

	var lastErr error
	for _, device := range order {
		if tried[device] {
			continue
		}
		tried[device] = true

		os.Setenv("GENESIS_DEVICE", device)
		resp, err := lm.Generate(ctx, prompt, params)
		if err == nil {
			return resp, device, nil
		}
		lastErr = err
	}
	return types.LocalResponse{}, "", fmt.Errorf("accel: inference failed on every ranked device: %w", lastErr)
}
