// Package milestone maps fine-grained sale workflow status identifiers onto the
// canonical milestones shown in the sales panel.
//
// The declaration order of the status table is the canonical lifecycle
// sequence; History depends on it.
package milestone

// Cancellation status identifiers. A sale in one of these states reports the
// milestone it reached before being cancelled.
const (
	StatusCancelled            = "5ea34de6e2a4942ab81c110f"
	StatusCancelledForIdleness = "609d12f421926828cd18220c"
	StatusCancellingForIdle    = "602e7810dada4448608fe64b"
)

// Finished is the terminal milestone of a successful sale.
const Finished = "5e99c111abc8283d1effdb10"

// ProcessFinished is the process engine's coarse "finished" state.
const ProcessFinished = "595c20500190000000000002"

type entry struct {
	status    string
	milestone string
}

// statuses is the ordered status -> milestone table.
var statuses = []entry{
	{"5ee3aec2b42c2a6b6224489a", "5ee3aec2b42c2a6b6224489a"},
	{"5ee3b098b42c2a6b62244eba", "5ee3aec2b42c2a6b6224489a"},
	{"5fad7fbcaab7383fdaad61ba", "5ee3aec2b42c2a6b6224489a"},
	{"5f5bacab428dd638977039cf", "5ee3aec2b42c2a6b6224489a"},
	{"5eeb56d8e2a4942ab8321681", "5ee3aec2b42c2a6b6224489a"},
	{"610163d0dac85a2706a73f8b", "5ee3aec2b42c2a6b6224489a"},
	{"5f5bc337428dd6389777b188", "5ee3aec2b42c2a6b6224489a"},
	{"5fb2723eb90b5939d8017fda", "5ee3aec2b42c2a6b6224489a"},
	{"5f593894428dd6389745b0f3", "5ee3aec2b42c2a6b6224489a"},
	{"5e99b4f7abc8283d1effa39d", "5e99b4f7abc8283d1effa39d"},
	{"5ea34c99e2a4942ab81c01e8", "5e99b4f7abc8283d1effa39d"},
	{"601aaf9b642360144314946f", "601aaf9b642360144314946f"},
	{"5e99b51fabc8283d1effa3d5", "5e99b51fabc8283d1effa3d5"},
	{"5ea34cb0e2a4942ab81c0221", "5e99b51fabc8283d1effa3d5"},
	{"5ec54077e2a4942ab81fc8b0", "5ec54077e2a4942ab81fc8b0"},
	{"5e99b565abc8283d1effa450", "5e99b565abc8283d1effa450"},
	{"5f469ea60c072f674fe1ab4e", "5e99b565abc8283d1effa450"},
	{"600199bf6caa9e657cee97f6", "5e99b565abc8283d1effa450"},
	{"600966b11f58fc6e35309fb6", "5e99b565abc8283d1effa450"},
	{"5e99b684abc8283d1effaa39", "5e99b684abc8283d1effaa39"},
	{"5f2bf7eee2a4942ab88be95c", "5f2bf7eee2a4942ab88be95c"},
	{"5f1725144b139a14f3185ac4", "5f1725144b139a14f3185ac4"},
	{"5f2318b215f8700ea1a1a2b8", "5f1725144b139a14f3185ac4"},
	{"5e99b65babc8283d1effa9ea", "5f1725144b139a14f3185ac4"},
	{"5f49457b603d5c30450ccda1", "5f1725144b139a14f3185ac4"},
	{"5fb57352b3a60d685bab59c4", "5f1725144b139a14f3185ac4"},
	{"5ea34d67e2a4942ab81c100a", "5ea34d67e2a4942ab81c100a"},
	{"5e99e4baabc8283d1e00ac95", "5ea34d67e2a4942ab81c100a"},
	{"606324aed7182368ee6d7d6a", "606324aed7182368ee6d7d6a"},
	{"60632857d7182368ee6e17d8", "60632857d7182368ee6e17d8"},
	{"5ea6c554b42c2a6b6228bb8d", "5ea6c554b42c2a6b6228bb8d"},
	{"6050c85d62779372e9d136c5", "6050c85d62779372e9d136c5"},
	{"6050f4f36b0bee7c89c880b4", "6050c85d62779372e9d136c5"},
	{"5f638bd5428dd63897adcdf1", "5f638bd5428dd63897adcdf1"},
	{"600f010907f78a19ed729e86", "5f638bd5428dd63897adcdf1"},
	{Finished, Finished},
}

// tasks maps the task identifiers of legacy process versions that mark a
// milestone onto that milestone.
var tasks = map[string]string{
	"scriptTask5f6361e4da9aa26b7a000001": "5f638bd5428dd63897adcdf1",
	"scriptTask6050c449c3b0b54176000001": "6050c85d62779372e9d136c5",
	"scriptTask6061bfcdb0a14e3fb5000008": "5ea6c554b42c2a6b6228bb8d",
	"scriptTask6061bfadb0a14e3fb5000007": "60632857d7182368ee6e17d8",
	"createContractAndConcludeSale":      "606324aed7182368ee6d7d6a",
	"installationEvent":                  "5ea34d67e2a4942ab81c100a",
	"scriptTaskCreateAirContract":        "5f1725144b139a14f3185ac4",
	"userTask5ebad280419fe868a3000001":   "5f2bf7eee2a4942ab88be95c",
	"vendaFinalizarCadastro":             "5e99b684abc8283d1effaa39",
	"eventProductSelection":              "5e99b565abc8283d1effa450",
	"userTask5f2aba1b684f565b87000001":   "5ec54077e2a4942ab81fc8b0",
	"financeViabilityTask":               "5e99b51fabc8283d1effa3d5",
	"userTaskCompleteRegistration":       "601aaf9b642360144314946f",
	"technicalViabilityTask":             "5e99b4f7abc8283d1effa39d",
	"eventAddressRegister":               "5ee3aec2b42c2a6b6224489a",
}

var (
	byStatus = make(map[string]int, len(statuses))
	groups   = make(map[string][]string)
	ordered  []string
)

func init() {
	for i, e := range statuses {
		byStatus[e.status] = i
		if _, seen := groups[e.milestone]; !seen {
			ordered = append(ordered, e.milestone)
		}
		groups[e.milestone] = append(groups[e.milestone], e.status)
	}
}

// Of returns the milestone of a status identifier. Unknown identifiers
// report false.
func Of(statusID string) (string, bool) {
	i, ok := byStatus[statusID]
	if !ok {
		return "", false
	}
	return statuses[i].milestone, true
}

// OfTask returns the milestone marked by a legacy task identifier.
func OfTask(taskID string) (string, bool) {
	m, ok := tasks[taskID]
	return m, ok
}

// IsMilestoneTask reports whether a legacy task identifier marks a milestone.
func IsMilestoneTask(taskID string) bool {
	_, ok := tasks[taskID]
	return ok
}

// Members expands milestone identifiers into every status identifier that
// maps onto them, in declaration order. Unknown milestones expand to nothing.
func Members(milestoneIDs ...string) []string {
	var out []string
	for _, id := range milestoneIDs {
		out = append(out, groups[id]...)
	}
	return out
}

// All returns the distinct milestones in lifecycle order.
func All() []string {
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}

// IsCancellation reports whether a status identifier is one of the
// cancellation states.
func IsCancellation(statusID string) bool {
	switch statusID {
	case StatusCancelled, StatusCancelledForIdleness, StatusCancellingForIdle:
		return true
	}
	return false
}

// History returns the milestones a sale at statusID has gone through, in
// lifecycle order, ending with the milestone of statusID itself. The table
// is walked backwards from statusID to the first lifecycle entry and the
// collected milestones are deduplicated. Unknown identifiers yield nil.
func History(statusID string) []string {
	pos, ok := byStatus[statusID]
	if !ok {
		return nil
	}
	var rev []string
	seen := make(map[string]bool)
	for i := pos; i >= 0; i-- {
		m := statuses[i].milestone
		if seen[m] {
			continue
		}
		seen[m] = true
		rev = append(rev, m)
	}
	out := make([]string, len(rev))
	for i, m := range rev {
		out[len(rev)-1-i] = m
	}
	return out
}

// IsFinished reports whether a milestone is the terminal one of a
// successful sale.
func IsFinished(milestoneID string) bool {
	return milestoneID == Finished
}
