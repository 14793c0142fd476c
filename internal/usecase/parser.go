package usecase

import "strings"

// ResponseParser splits a model reply into problem and solution parts.
// The split convention is coupled to the system prompt, so both live
// behind this interface and evolve together.
type ResponseParser interface {
	Parse(raw string) (problem, solution string)
}

const (
	problemMarker  = "- Problem:"
	solutionMarker = "- Solution:"
)

var _ ResponseParser = (*DelimiterParser)(nil)

// DelimiterParser expects the reply to wrap the problem statement between
// "- Problem:" and "- Solution:" markers. When either marker is missing
// the whole reply is treated as the solution.
type DelimiterParser struct{}

func NewDelimiterParser() *DelimiterParser { return &DelimiterParser{} }

func (p *DelimiterParser) Parse(raw string) (string, string) {
	pi := strings.Index(raw, problemMarker)
	if pi < 0 {
		return "", strings.TrimSpace(raw)
	}
	rest := raw[pi+len(problemMarker):]
	si := strings.Index(rest, solutionMarker)
	if si < 0 {
		return "", strings.TrimSpace(raw)
	}
	problem := strings.TrimSpace(rest[:si])
	solution := strings.TrimSpace(rest[si+len(solutionMarker):])
	return problem, solution
}
