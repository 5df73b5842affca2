// Package normalize turns staged evidence into the canonical model. Row
// failures stay row-local; only transaction-level failures abort a run.
package normalize

import "fmt"

// RowValidationError marks a staged row the engine cannot consolidate.
// It is counted and logged but never fails the run.
type RowValidationError struct {
	SheetName string
	RowIndex  int
	Reason    string
}

func (e *RowValidationError) Error() string {
	if e.SheetName != "" {
		return fmt.Sprintf("row %d of %s: %s", e.RowIndex, e.SheetName, e.Reason)
	}
	return fmt.Sprintf("row %d: %s", e.RowIndex, e.Reason)
}

// Result summarizes one normalization run.
type Result struct {
	RunID        string `json:"run_id"`
	RowsSeen     int    `json:"rows_seen"`
	RowsWritten  int    `json:"rows_written"`
	RowsSkipped  int    `json:"rows_skipped"`
	RowsInvalid  int    `json:"rows_invalid"`
	FlowsCreated int    `json:"flows_created"`
	FlowsUpdated int    `json:"flows_updated"`
}
