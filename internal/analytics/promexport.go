// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

package analytics

import "github.com/prometheus/client_golang/prometheus"

// PromCollectors exports the five metric groups as Prometheus gauges
// against a caller-supplied registry (spec §4.F EXPANSION — never a
// global registry, per the Design Notes' "no global singletons beyond
// the logger sink").
type PromCollectors struct {
	GlobalAccuracy      prometheus.Gauge
	ConvergenceRate     prometheus.Gauge
	Stability           prometheus.Gauge
	ActiveParticipants  prometheus.Gauge
	ParticipantTurnover prometheus.Gauge
	BudgetUtilization   prometheus.Gauge
	PrivacyViolations   prometheus.Gauge
	TrainingTimeSeconds prometheus.Gauge
	NetworkEfficiency   prometheus.Gauge
	ModelQuality        prometheus.Gauge
}

// NewPromCollectors registers gauges for each metric group against reg.
func NewPromCollectors(reg prometheus.Registerer) *PromCollectors {
	p := &PromCollectors{
		GlobalAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_global_accuracy",
			Help: "Smoothed global model accuracy.",
		}),
		ConvergenceRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_convergence_rate",
			Help: "Smoothed round-over-round accuracy improvement.",
		}),
		Stability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_stability",
			Help: "Smoothed convergence stability, in [0, 1].",
		}),
		ActiveParticipants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_active_participants",
			Help: "Participant count in the most recently completed round.",
		}),
		ParticipantTurnover: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_participant_turnover",
			Help: "Relative change in participant count round over round.",
		}),
		BudgetUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_privacy_budget_utilization",
			Help: "Fraction of the total privacy budget consumed.",
		}),
		PrivacyViolations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_privacy_violations_total",
			Help: "Count of recorded privacy budget violations.",
		}),
		TrainingTimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_training_time_seconds",
			Help: "Smoothed per-round training time.",
		}),
		NetworkEfficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_network_efficiency",
			Help: "Smoothed network efficiency estimate, in [0, 1].",
		}),
		ModelQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedlearn_analytics_model_quality",
			Help: "Smoothed model quality estimate.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.GlobalAccuracy, p.ConvergenceRate, p.Stability, p.ActiveParticipants,
			p.ParticipantTurnover, p.BudgetUtilization, p.PrivacyViolations, p.TrainingTimeSeconds,
			p.NetworkEfficiency, p.ModelQuality)
	}
	return p
}

// Export pushes one Report's metric groups into the registered gauges.
func (p *PromCollectors) Export(r Report) {
	p.GlobalAccuracy.Set(r.Convergence.GlobalAccuracy)
	p.ConvergenceRate.Set(r.Convergence.ConvergenceRate)
	p.Stability.Set(r.Convergence.Stability)
	p.ActiveParticipants.Set(float64(r.Participation.Active))
	p.ParticipantTurnover.Set(r.Participation.Turnover)
	p.BudgetUtilization.Set(r.Privacy.BudgetUtilization)
	p.PrivacyViolations.Set(float64(r.Privacy.Violations))
	p.TrainingTimeSeconds.Set(r.Performance.TrainingTime.Seconds())
	p.NetworkEfficiency.Set(r.Performance.NetworkEfficiency)
	p.ModelQuality.Set(r.Quality.ModelQuality)
}
