package domain

import "time"

// CycleReport contains everything produced by one reconciliation cycle.
type CycleReport struct {
	StartedAt      time.Time
	Duration       time.Duration
	Balance        float64 // venue balance, observability only
	MarketsScanned int
	Admitted       int
	EntriesPlaced  int
	Recreated      int
	Fills          int
	TakeProfits    int
	Purged         int
	Warnings       []string
	Tracked        []OrderRecord // live records at end of cycle, for reporting
}
