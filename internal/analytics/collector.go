// Copyright 2026 Sovereign-Mohawk Core Team
// Licensed under the Apache License, Version 2.0

// Package analytics implements the Analytics component (spec §4.F):
// five metric groups (convergence, participation, privacy, performance,
// quality), per-participant standing, a rolling learning-trend buffer,
// and threshold-driven recommendations. Grounded in shape on
// internal/monitoring/collector.go's Record/Aggregation pattern and
// internal/convergence/detector.go's variance/heterogeneity handling,
// generalized from raw metric streams into the five named groups.
package analytics

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const maxTrendHistory = 1000

// smoothingAlpha is the exponential-smoothing factor for noisy counters
// (spec §4.F: "α ≈ 0.1–0.2").
const smoothingAlpha = 0.15

// Convergence is the convergence metric group (spec §4.F).
type Convergence struct {
	GlobalAccuracy        float64
	RoundsToConvergence   int
	ConvergenceRate       float64
	Stability             float64
	HeterogeneityEstimate float64 // EXPANSION, grounded on convergence.Detector's ζ² bound
}

// Participation is the participation metric group.
type Participation struct {
	Active  int
	Average float64
	Turnover float64
}

// Privacy is the privacy metric group.
type Privacy struct {
	BudgetUtilization  float64
	AvgNoiseLevel      float64
	Violations         int
	InformationLeakage float64
}

// Performance is the performance metric group.
type Performance struct {
	TrainingTime     time.Duration
	CommOverhead     float64
	NetworkEfficiency float64
}

// Quality is the quality metric group.
type Quality struct {
	ModelQuality     float64
	DataQuality      float64
	PatternDiversity float64
	KnowledgeTransfer float64
}

// ParticipantStanding is per-participant analytics (spec §4.F).
type ParticipantStanding struct {
	InstanceID          string
	ContributionQuality float64
	DataContribution    float64
	ParticipationRate   float64
	Reputation          float64
	LastActive          time.Time
}

// LearningTrend is one sample of the rolling trend buffer.
type LearningTrend struct {
	Round     int
	Accuracy  float64
	Loss      float64
	Timestamp time.Time
}

// Collector aggregates Analytics' five metric groups plus
// per-participant standing and the learning-trend ring buffer.
type Collector struct {
	mu sync.RWMutex

	convergence   Convergence
	participation Participation
	privacy       Privacy
	performance   Performance
	quality       Quality

	trends     []LearningTrend
	trendHead  int
	trendCount int

	participants *lru.Cache[string, *ParticipantStanding]
	roundHistory []int // participant counts per completed round, for turnover/average

	now func() time.Time
}

// Option configures a Collector at construction.
type Option func(*Collector)

func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// New creates a Collector with a bounded per-participant cache of the
// given capacity.
func New(participantCapacity int, opts ...Option) *Collector {
	cache, err := lru.New[string, *ParticipantStanding](participantCapacity)
	if err != nil {
		cache, _ = lru.New[string, *ParticipantStanding](1)
	}
	c := &Collector{
		trends:       make([]LearningTrend, maxTrendHistory),
		participants: cache,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordRound folds one completed round's aggregation result into the
// convergence and participation groups and appends a learning-trend
// sample.
func (c *Collector) RecordRound(round, participantCount int, accuracy, loss, stability float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prevAccuracy := c.convergence.GlobalAccuracy
	c.convergence.GlobalAccuracy = ewma(prevAccuracy, accuracy, smoothingAlpha)
	c.convergence.Stability = ewma(c.convergence.Stability, stability, smoothingAlpha)
	if accuracy-prevAccuracy > 0 {
		c.convergence.ConvergenceRate = ewma(c.convergence.ConvergenceRate, accuracy-prevAccuracy, smoothingAlpha)
	}
	if c.convergence.RoundsToConvergence == 0 && accuracy >= 0.99 {
		c.convergence.RoundsToConvergence = round
	}

	c.roundHistory = append(c.roundHistory, participantCount)
	if len(c.roundHistory) > maxTrendHistory {
		c.roundHistory = c.roundHistory[1:]
	}
	c.recomputeParticipationLocked()

	c.appendTrendLocked(LearningTrend{Round: round, Accuracy: accuracy, Loss: loss, Timestamp: c.now()})
}

// RecordHeterogeneity folds a variance/heterogeneity estimate into the
// convergence group (grounded on convergence.Detector's ζ² bound).
func (c *Collector) RecordHeterogeneity(estimate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convergence.HeterogeneityEstimate = ewma(c.convergence.HeterogeneityEstimate, estimate, smoothingAlpha)
}

// RecordPrivacy folds one Accountant.Privatize outcome into the
// privacy metric group.
func (c *Collector) RecordPrivacy(epsilonConsumed, total, noiseLevel float64, violated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total > 0 {
		c.privacy.BudgetUtilization = epsilonConsumed / total
	}
	c.privacy.AvgNoiseLevel = ewma(c.privacy.AvgNoiseLevel, noiseLevel, smoothingAlpha)
	if violated {
		c.privacy.Violations++
	}
	// A coarse leakage proxy: utilization weighted by inverse noise —
	// the more budget spent per unit of injected noise, the more signal
	// survives.
	if noiseLevel > 0 {
		c.privacy.InformationLeakage = ewma(c.privacy.InformationLeakage, c.privacy.BudgetUtilization/noiseLevel, smoothingAlpha)
	}
}

// RecordPerformance folds one round's timing/overhead into the
// performance metric group.
func (c *Collector) RecordPerformance(trainingTime time.Duration, bytesTransferred int64, peerCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.performance.TrainingTime = time.Duration(ewma(float64(c.performance.TrainingTime), float64(trainingTime), smoothingAlpha))
	overhead := 0.0
	if peerCount > 0 {
		overhead = float64(bytesTransferred) / float64(peerCount)
	}
	c.performance.CommOverhead = ewma(c.performance.CommOverhead, overhead, smoothingAlpha)
	efficiency := 1.0 / (1.0 + overhead/(1<<20)) // bytes/peer normalized against a 1 MiB reference
	c.performance.NetworkEfficiency = ewma(c.performance.NetworkEfficiency, efficiency, smoothingAlpha)
}

// RecordQuality folds one round's model/data-quality signals into the
// quality metric group.
func (c *Collector) RecordQuality(modelQuality, dataQuality, patternDiversity, knowledgeTransfer float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quality.ModelQuality = ewma(c.quality.ModelQuality, modelQuality, smoothingAlpha)
	c.quality.DataQuality = ewma(c.quality.DataQuality, dataQuality, smoothingAlpha)
	c.quality.PatternDiversity = ewma(c.quality.PatternDiversity, patternDiversity, smoothingAlpha)
	c.quality.KnowledgeTransfer = ewma(c.quality.KnowledgeTransfer, knowledgeTransfer, smoothingAlpha)
}

// RecordParticipant updates one participant's standing after a round
// or vote.
func (c *Collector) RecordParticipant(instanceID string, contributionQuality, dataContribution, participationRate, reputation float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants.Add(instanceID, &ParticipantStanding{
		InstanceID:          instanceID,
		ContributionQuality: contributionQuality,
		DataContribution:    dataContribution,
		ParticipationRate:   participationRate,
		Reputation:          reputation,
		LastActive:          c.now(),
	})
}

// Participant returns one participant's current standing.
func (c *Collector) Participant(instanceID string) (ParticipantStanding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participants.Get(instanceID)
	if !ok {
		return ParticipantStanding{}, false
	}
	return *p, true
}

func (c *Collector) recomputeParticipationLocked() {
	if len(c.roundHistory) == 0 {
		return
	}
	last := c.roundHistory[len(c.roundHistory)-1]
	c.participation.Active = last

	sum := 0
	for _, n := range c.roundHistory {
		sum += n
	}
	c.participation.Average = float64(sum) / float64(len(c.roundHistory))

	if len(c.roundHistory) >= 2 {
		prev := c.roundHistory[len(c.roundHistory)-2]
		if prev > 0 {
			c.participation.Turnover = math.Abs(float64(last-prev)) / float64(prev)
		}
	}
}

func (c *Collector) appendTrendLocked(sample LearningTrend) {
	c.trends[c.trendHead] = sample
	c.trendHead = (c.trendHead + 1) % maxTrendHistory
	if c.trendCount < maxTrendHistory {
		c.trendCount++
	}
}

// Trends returns the ring buffer's samples in chronological order.
func (c *Collector) Trends() []LearningTrend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]LearningTrend, c.trendCount)
	start := (c.trendHead - c.trendCount + maxTrendHistory) % maxTrendHistory
	for i := 0; i < c.trendCount; i++ {
		out[i] = c.trends[(start+i)%maxTrendHistory]
	}
	return out
}

func ewma(prev, sample, alpha float64) float64 {
	if prev == 0 {
		return sample
	}
	return alpha*sample + (1-alpha)*prev
}
