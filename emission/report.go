package emission

import (
	"fmt"
	"strings"
)

// Job is one credential emission inside a batch.
type Job struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Batch is an emissions block. Membership is fixed once created; only job
// statuses move.
type Batch struct {
	ID   string `json:"id"`
	Jobs []Job  `json:"jobs"`
}

// StatusReport is derived from a batch snapshot and never persisted here.
type StatusReport struct {
	BatchID      string         `json:"batch_id,omitempty"`
	Counts       map[Status]int `json:"counts"`
	PendingIDs   []string       `json:"pending_ids"`
	PendingCount int            `json:"pending_count"`
}

// Summarize tallies jobs by status and collects the pending ids in input
// order. Duplicate ids are counted independently. A job without an id fails
// the whole call.
func Summarize(jobs []Job) (StatusReport, error) {
	report := newReport("")
	for index, job := range jobs {
		if strings.TrimSpace(job.ID) == "" {
			return StatusReport{}, malformedJobRecordError(index)
		}
		status := job.Status.Normalize()
		report.Counts[status]++
		if status.Pending() {
			report.PendingIDs = append(report.PendingIDs, job.ID)
		}
	}
	report.PendingCount = len(report.PendingIDs)
	return report, nil
}

// SummarizeBatch is Summarize with the batch id stamped on the report.
func SummarizeBatch(batch Batch) (StatusReport, error) {
	report, err := Summarize(batch.Jobs)
	if err != nil {
		return StatusReport{}, err
	}
	report.BatchID = batch.ID
	return report, nil
}

func newReport(batchID string) StatusReport {
	counts := make(map[Status]int, len(statusOrder))
	for _, status := range statusOrder {
		counts[status] = 0
	}
	return StatusReport{
		BatchID:    batchID,
		Counts:     counts,
		PendingIDs: []string{},
	}
}

func (r StatusReport) Resolved() bool {
	return r.PendingCount == 0
}

func (r StatusReport) Total() int {
	total := 0
	for _, count := range r.Counts {
		total += count
	}
	return total
}

func (r StatusReport) Count(status Status) int {
	return r.Counts[status.Normalize()]
}

// Lines renders the non-zero counts in status code order.
func (r StatusReport) Lines() []string {
	lines := make([]string, 0, len(statusOrder))
	for _, status := range statusOrder {
		count := r.Counts[status]
		if count == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d", status.Label(), count))
	}
	return lines
}

// Fields flattens the report for structured logging.
func (r StatusReport) Fields() map[string]any {
	fields := map[string]any{
		"block_id": r.BatchID,
		"total":    r.Total(),
		"pending":  r.PendingCount,
	}
	for _, status := range statusOrder {
		if count := r.Counts[status]; count > 0 {
			fields[string(status)] = count
		}
	}
	return fields
}

func (r StatusReport) clone() StatusReport {
	out := newReport(r.BatchID)
	for status, count := range r.Counts {
		out.Counts[status] = count
	}
	out.PendingIDs = append(out.PendingIDs, r.PendingIDs...)
	out.PendingCount = r.PendingCount
	return out
}
