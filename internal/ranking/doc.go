// Package ranking scores and orders the responses submitted against a
// requirement so its owner can review the most trustworthy ones first.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
//	if err != nil {
//		logger.Warn("using default ranking weights", "error", err)
//	}
//
//	engine := ranking.NewEngine(ranking.EngineConfig{
//		Requirements: requirementRepo,
//		Responses:    responseRepo,
//		Outcomes:     responseRepo,
//		Snapshots:    snapshotCache,
//		Interests:    interestRepo,
//		Circles:      circleRepo,
//		Weights:      weights,
//		Metrics:      rankingMetrics,
//	})
//
//	result, err := engine.Rank(ctx, ranking.RankRequest{
//		RequirementID: requirementID,
//		ViewerID:      viewerID,
//		Page:          1,
//		Limit:         10,
//	})
//
// Scoring:
//
// Each response gets an additive score built from referrer success rate,
// candidate activity, recent accepted interest, circle proximity to the viewer
// and the candidate's premium flag. The total is capped at MaxScore. Every
// component and the evidence behind it is returned in ScoreDetails.
//
// Signals are fetched in bulk for the whole batch, concurrently, before any
// response is scored. A failing signal fails the whole ranking.
//
// Calibration:
//
// Component weights can be tuned at deploy time with a JSON calibration file.
// The score cap and the activity and interest windows are fixed.
package ranking
