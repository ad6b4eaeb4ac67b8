package repository

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/unclebandit/smsleopard-webhooks/internal/model"
)

// rankExpr mirrors model.StatusRank inside SQL so the monotonic status
// guard is applied atomically by the UPDATE itself.
var rankExpr = buildRankExpr()

func buildRankExpr() string {
	statuses := model.TrackedStatuses()
	sort.Slice(statuses, func(i, j int) bool {
		a, _ := model.StatusRank(statuses[i])
		b, _ := model.StatusRank(statuses[j])
		return a < b
	})

	var b strings.Builder
	b.WriteString("CASE status")
	for _, s := range statuses {
		rank, _ := model.StatusRank(s)
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", s, rank)
	}
	b.WriteString(" ELSE -1 END")
	return b.String()
}

// Tenant scopes for the ledger UPDATE. $5 is always the tenant id.
const (
	messageTenantScope  = `tenant_id = $5`
	audienceTenantScope = `campaign_id IN (SELECT id FROM campaigns WHERE tenant_id = $5)`
)

// statusUpdateQuery builds the ledger UPDATE for one status. The stage
// timestamp keeps its first recorded value; the status only moves forward.
// Args: $1 provider_message_id, $2 incoming rank, $3 incoming status,
// $4 failure reason (nullable), $5 tenant id, $6 stage timestamp.
func statusUpdateQuery(table, tenantScope, returning, status string) string {
	stage := ""
	if col := model.StageColumn(status); col != "" {
		stage = fmt.Sprintf("%s = COALESCE(%s, $6),\n        ", col, col)
	}
	return fmt.Sprintf(`UPDATE %s SET
        status = CASE WHEN $2 >= %s THEN $3 ELSE status END,
        %sfailure_reason = CASE WHEN $3 = 'failed' THEN $4 ELSE failure_reason END,
        updated_at = NOW()
    WHERE provider_message_id = $1 AND %s
    RETURNING %s`, table, rankExpr, stage, tenantScope, returning)
}

func statusUpdateArgs(u model.StatusUpdate) []interface{} {
	rank, _ := model.StatusRank(u.Status)
	reason := sql.NullString{String: u.FailureReason, Valid: u.Status == model.StatusFailed}
	args := []interface{}{u.ProviderMessageID, rank, u.Status, reason, u.TenantID}
	if model.StageColumn(u.Status) != "" {
		args = append(args, u.Timestamp)
	}
	return args
}
