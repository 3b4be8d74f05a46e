package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	runsCalculated  uint64
	payslipsSent    uint64
	payslipFailures uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RunCalculated() { atomic.AddUint64(&c.runsCalculated, 1) }
func (c *Collector) PayslipSent()   { atomic.AddUint64(&c.payslipsSent, 1) }
func (c *Collector) PayslipFailed() { atomic.AddUint64(&c.payslipFailures, 1) }

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":         total,
		"errorsTotal":           atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":      atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":         avg,
		"totalDurationMs":       totalMs,
		"payrollRunsCalculated": atomic.LoadUint64(&c.runsCalculated),
		"payslipsSentTotal":     atomic.LoadUint64(&c.payslipsSent),
		"payslipFailuresTotal":  atomic.LoadUint64(&c.payslipFailures),
	}
}
