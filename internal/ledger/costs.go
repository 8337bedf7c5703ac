package ledger

import "github.com/pathwise/pathwise-api/internal/domain"

// Fixed token costs per task type. Admission debits exactly these amounts
// before the corresponding task may be created.
var taskCosts = map[domain.TaskType]int{
	domain.TaskTypeAnalyzeResume:  5,
	domain.TaskTypeOptimizeResume: 8,
	domain.TaskTypeAddSkill:       2,
	domain.TaskTypeInterviewPrep:  10,
	domain.TaskTypeCoverLetter:    4,
}

// defaultCost is charged for task types without an explicit entry.
const defaultCost = 5

// CostFor returns the fixed token cost of the given task type.
func CostFor(taskType domain.TaskType) int {
	if cost, ok := taskCosts[taskType]; ok {
		return cost
	}
	return defaultCost
}
