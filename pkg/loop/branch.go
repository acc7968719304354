package loop

// Jump table offsets for a loop component
const (
	NormalBranch  = 0 // continue along the component's first jump
	OverrunBranch = 1 // the component ran more times than its target
)

// DecideBranch maps the run counter and target run count to a jump table
// index. Reaching the target exactly stays on the normal branch; only a run
// count strictly greater than the target takes the overrun branch.
func DecideBranch(runCount, targetCount int) int {
	if runCount > targetCount {
		return OverrunBranch
	}
	return NormalBranch
}
