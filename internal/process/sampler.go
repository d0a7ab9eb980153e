package process

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gp "github.com/shirou/gopsutil/v4/process"
)

// Sampler produces process tables restricted to one executable name.
// Implementations must be safe for concurrent use.
type Sampler interface {
	Sample(ctx context.Context, name string) (Table, error)
}

// SystemSampler samples the host process table with gopsutil.
// CPU usage is the share used since the previous sample of the same process,
// so handles are kept between calls; the first sample of a process reports 0.
type SystemSampler struct {
	mu      sync.Mutex
	handles map[int32]handle
}

type handle struct {
	proc      *gp.Process
	createdAt int64
}

func NewSystemSampler() *SystemSampler {
	return &SystemSampler{handles: make(map[int32]handle)}
}

func (s *SystemSampler) Sample(ctx context.Context, name string) (Table, error) {
	procs, err := gp.ProcessesWithContext(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("list processes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	seen := make(map[int32]handle, len(s.handles))
	infos := make([]Info, 0)
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil || pname != name {
			continue
		}
		h := s.reuse(ctx, p)
		info, err := readInfo(ctx, h.proc, pname)
		if err != nil {
			// Most likely exited between listing and reading.
			slog.Debug("Skip process while sampling", "pid", p.Pid, "error", err)
			continue
		}
		seen[p.Pid] = h
		infos = append(infos, info)
	}
	s.handles = seen
	return NewTable(now, infos...), nil
}

// reuse returns the cached handle for p when it still refers to the same process.
func (s *SystemSampler) reuse(ctx context.Context, p *gp.Process) handle {
	created, _ := p.CreateTimeWithContext(ctx)
	if h, ok := s.handles[p.Pid]; ok && h.createdAt == created {
		return h
	}
	return handle{proc: p, createdAt: created}
}

func readInfo(ctx context.Context, p *gp.Process, name string) (Info, error) {
	memInfo, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	cpuPercent, err := p.PercentWithContext(ctx, 0)
	if err != nil {
		slog.Debug("Failed to get CPU percent", "pid", p.Pid, "error", err)
		cpuPercent = 0
	}
	// An unreadable command line is left empty; the detector reports it.
	cmdline, _ := p.CmdlineSliceWithContext(ctx)
	return Info{
		PID:        p.Pid,
		Name:       name,
		Cmdline:    cmdline,
		MemoryRSS:  memInfo.RSS,
		CPUPercent: cpuPercent,
	}, nil
}
