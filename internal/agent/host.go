package agent

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemoryUsage returns the host memory load in percent.
func MemoryUsage(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}

	return vm.UsedPercent, nil
}

// ResolvePID returns the game server pid used as the uptime anchor owner.
// The pid is read from pidFile when it names a live process; otherwise the agent's
// own pid is used, which is right when the agent runs inside the game server process.
func ResolvePID(ctx context.Context, pidFile string) int {
	if pidFile == "" {
		return os.Getpid()
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		log.Warn().Err(err).Str("path", pidFile).Msg("Cannot read game server pid file, using own pid")
		return os.Getpid()
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		log.Warn().Str("path", pidFile).Msg("Invalid game server pid file, using own pid")
		return os.Getpid()
	}

	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !alive {
		log.Warn().Int("pid", pid).Msg("Game server process not found, using own pid")
		return os.Getpid()
	}

	return pid
}
