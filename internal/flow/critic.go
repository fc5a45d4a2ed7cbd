package flow

import (
	"os"
	"strings"
)

// CriticReport is the review payload recorded per iteration and returned in
// the flow result. Score saturates at 10.
type CriticReport struct {
	Persona     string   `json:"persona"`
	Score       int      `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions string   `json:"suggestions"`
	Iteration   int      `json:"iteration"`
}

// reviewDesign scores the design document with a cheap structural heuristic:
// headings and length stand in for depth. A missing file scores as empty.
func reviewDesign(path string, iteration int) CriticReport {
	raw, err := os.ReadFile(path)
	if err != nil {
		raw = nil
	}
	content := string(raw)
	headings := strings.Count(content, "#")
	words := len(strings.Fields(content))
	score := 4 + headings + words/200
	if score > 10 {
		score = 10
	}
	issues := []string{}
	if headings < 3 {
		issues = append(issues, "Add more structured sections to the design.")
	}
	if !strings.Contains(strings.ToLower(content), "performance") {
		issues = append(issues, "Explicitly discuss performance considerations.")
	}
	return CriticReport{
		Persona:     "john_carmack",
		Score:       score,
		Issues:      issues,
		Suggestions: "Iterate on the architecture and quantify trade-offs.",
		Iteration:   iteration,
	}
}
