package domain

// Intent is the navigation intent classification of a user query.
type Intent struct {
	Query      string
	Intent     string
	Confidence float64
}

// NavigationStep is one step of a guide. Index is 1-based and unique within
// its guide.
type NavigationStep struct {
	Index                int
	PageURL              string
	PageTitle            string
	Description          string
	Action               string
	ExpectedElements     []string
	EstimatedTimeSeconds int
}

// NavigationGuide is a sequence of steps generated for a user's goal. A new
// navigation request replaces the guide wholesale.
type NavigationGuide struct {
	Query                string
	Intent               string
	Confidence           float64
	Goal                 string
	Steps                []NavigationStep
	EstimatedTimeSeconds int
	Difficulty           string
	SuccessRate          float64
	QuickTips            []string
	AlternativePaths     []string
}

// Clone returns a deep copy so callers cannot reach the slices of a guide
// held by the state machine or the message log.
func (g NavigationGuide) Clone() NavigationGuide {
	out := g
	out.Steps = make([]NavigationStep, len(g.Steps))
	for i, s := range g.Steps {
		s.ExpectedElements = append([]string(nil), s.ExpectedElements...)
		out.Steps[i] = s
	}
	out.QuickTips = append([]string(nil), g.QuickTips...)
	out.AlternativePaths = append([]string(nil), g.AlternativePaths...)
	return out
}
