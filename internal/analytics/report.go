// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package analytics

// Report is the Analytics component's output (spec §4.F): a summary of
// the five metric groups, the trend buffer, current participants, any
// emergent patterns, and textual recommendations derived from threshold
// rules.
type Report struct {
	Convergence     Convergence
	Participation   Participation
	Privacy         Privacy
	Performance     Performance
	Quality         Quality
	Trends          []LearningTrend
	Participants    []ParticipantStanding
	Patterns        []string
	Recommendations []string
}

// Report snapshots the Collector's current state into a Report,
// including threshold-rule recommendations (spec §4.F: "convergence_rate
// < 0.01 → adjust learning rate").
func (c *Collector) Report() Report {
	c.mu.RLock()
	convergence := c.convergence
	participation := c.participation
	privacy := c.privacy
	performance := c.performance
	quality := c.quality
	participants := make([]ParticipantStanding, 0, c.participants.Len())
	for _, id := range c.participants.Keys() {
		if p, ok := c.participants.Peek(id); ok {
			participants = append(participants, *p)
		}
	}
	c.mu.RUnlock()

	r := Report{
		Convergence:   convergence,
		Participation: participation,
		Privacy:       privacy,
		Performance:   performance,
		Quality:       quality,
		Trends:        c.Trends(),
		Participants:  participants,
	}
	r.Patterns = detectPatterns(r)
	r.Recommendations = recommend(r)
	return r
}

// detectPatterns flags emergent conditions worth surfacing alongside
// the raw metric groups.
func detectPatterns(r Report) []string {
	var patterns []string
	if r.Participation.Turnover > 0.5 {
		patterns = append(patterns, "high_participant_turnover")
	}
	if r.Quality.PatternDiversity > 0.8 {
		patterns = append(patterns, "high_data_diversity")
	}
	if r.Privacy.Violations > 0 {
		patterns = append(patterns, "privacy_budget_violations_detected")
	}
	return patterns
}

// recommend applies the threshold rules spec §4.F names and a few
// natural extensions over the same five groups.
func recommend(r Report) []string {
	var out []string
	if r.Convergence.ConvergenceRate < 0.01 && r.Convergence.ConvergenceRate != 0 {
		out = append(out, "convergence rate below 0.01: consider adjusting the learning rate")
	}
	if r.Convergence.Stability < 0.5 {
		out = append(out, "low convergence stability: consider increasing minimum_participants or clip threshold")
	}
	if r.Privacy.BudgetUtilization > 0.9 {
		out = append(out, "privacy budget nearly exhausted: schedule a budget reset or relax the privacy level")
	}
	if r.Participation.Turnover > 0.5 {
		out = append(out, "high participant turnover: review selection scoring and reputation penalties")
	}
	if r.Performance.NetworkEfficiency < 0.3 {
		out = append(out, "low network efficiency: consider batching updates or reducing round frequency")
	}
	return out
}
