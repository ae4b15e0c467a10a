//go:build linux

package magicmount

import "fmt"

// Stats tallies the outcome of one ScanModules + Executor.Run pass.
type Stats struct {
	ModulesTotal  int
	NodesTotal    int
	NodesMounted  int
	NodesSkipped  int
	NodesWhiteout int
	NodesFail     int

	// FailedModules names every module that contributed at least one node
	// the executor failed to realize.
	FailedModules []string
}

func (s *Stats) recordFailure(moduleName string) {
	s.NodesFail++

	if moduleName == "" {
		return
	}

	for _, name := range s.FailedModules {
		if name == moduleName {
			return
		}
	}

	s.FailedModules = append(s.FailedModules, moduleName)
}

// String renders a one-line human summary, matching the shape of the
// original implementation's end-of-run log line.
func (s Stats) String() string {
	summary := fmt.Sprintf("summary: modules=%d nodes=%d mounted=%d skipped=%d whiteouts=%d failures=%d",
		s.ModulesTotal, s.NodesTotal, s.NodesMounted, s.NodesSkipped, s.NodesWhiteout, s.NodesFail)

	if len(s.FailedModules) == 0 {
		return summary
	}

	return fmt.Sprintf("%s failed_modules=%v", summary, s.FailedModules)
}
