package sqlstore

import (
	"github.com/goliatone/go-certidigital/fixtures"
	"github.com/goliatone/go-certidigital/ratelimit"
	"github.com/goliatone/go-certidigital/workflow"
)

var (
	_ fixtures.LedgerStore     = (*LedgerStore)(nil)
	_ workflow.CheckpointStore = (*CheckpointStore)(nil)
	_ ratelimit.StateStore     = (*RateLimitStateStore)(nil)
)
