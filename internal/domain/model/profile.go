package model

import "strings"

// Profile is the candidate context folded into prompts. The zero value is
// a valid "no profile" context.
type Profile struct {
	RequesterID     string
	Name            string
	TargetRole      string
	YearsExperience int
	TechStack       []string
	Projects        string
	JobDescription  string
}

func (p Profile) Empty() bool {
	return p.Name == "" && p.TargetRole == "" && len(p.TechStack) == 0 &&
		p.Projects == "" && p.JobDescription == ""
}

func (p Profile) Skills() string {
	return strings.Join(p.TechStack, ", ")
}
