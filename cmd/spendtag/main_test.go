package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/analytics"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/engine"
	"github.com/Veraticus/spendtag/internal/model"
)

const statementOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[0:GMT]
<TRNAMT>-15.99
<FITID>T1
<NAME>NETFLIX.COM
</STMTTRN>
<STMTTRN>
<TRNTYPE>DIRECTDEP
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>5000.00
<FITID>T2
<NAME>ACME CORP PAYROLL
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-3.50
<FITID>T3
<NAME>STARBUCKS
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

type harness struct {
	t   *testing.T
	db  string
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &harness{t: t, db: filepath.Join(dir, "spendtag.db"), dir: dir}
}

// run executes the CLI against the harness database and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--db", h.db, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) writeFile(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (h *harness) importStatement(tenant string) {
	h.t.Helper()
	path := h.writeFile("statement.qfx", statementOFX)
	out := h.mustRun("--tenant-id", tenant, "import-ofx", path)
	require.Contains(h.t, out, "Saved 3 transactions")
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestMigrateStatus(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("migrate", "--status")
	assert.Contains(t, out, "Current version: 0")
	assert.Contains(t, out, "Pending migrations")

	h.mustRun("migrate")

	out = h.mustRun("migrate", "--status")
	assert.Contains(t, out, "Current version: 2")
	assert.NotContains(t, out, "Pending migrations")
}

func TestTenantIsRequired(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("autotag")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant-id")

	_, err = h.run("--tenant-type", "team", "--tenant-id", "alice", "autotag")
	require.Error(t, err)
}

func TestImportAutotagAndQuery(t *testing.T) {
	h := newHarness(t)
	h.importStatement("alice")

	t.Run("dry run import saves nothing", func(t *testing.T) {
		path := h.writeFile("again.qfx", statementOFX)
		out := h.mustRun("--tenant-id", "bob", "import-ofx", "--dry-run", path)
		assert.Contains(t, out, "Dry run complete")
	})

	result := decode[engine.BatchResult](t, h.mustRun("--tenant-id", "alice", "autotag", "--json"))
	assert.Equal(t, 3, result.Succeeded)
	assert.Zero(t, result.Failed)

	classes := make(map[string]model.Classification)
	for _, item := range result.Results {
		require.NotNil(t, item.Result, item.TransactionID)
		classes[item.TransactionID] = item.Result.Classification
	}
	assert.Equal(t, map[string]model.Classification{
		"1234567890:T1": model.ClassificationSubscription,
		"1234567890:T2": model.ClassificationSalaryIncome,
		"1234567890:T3": model.ClassificationMicroTransaction,
	}, classes)

	t.Run("tags are listed per resource", func(t *testing.T) {
		tags := decode[[]model.Tag](t, h.mustRun("--tenant-id", "alice", "tags", "list", "1234567890:T1", "--json"))
		byKey := make(map[string]model.Tag)
		for _, tag := range tags {
			byKey[tag.Key] = tag
		}
		assert.Equal(t, "SUBSCRIPTION", byKey["classification"].Value)
		assert.True(t, byKey["classification"].AutoGenerated())
	})

	t.Run("query by tag", func(t *testing.T) {
		out := h.mustRun("--tenant-id", "alice", "tags", "query", "--filter", "classification=SALARY_INCOME")
		assert.Equal(t, "1234567890:T2", strings.TrimSpace(out))
	})

	t.Run("other tenants see nothing", func(t *testing.T) {
		ids := decode[[]string](t, h.mustRun("--tenant-id", "bob", "tags", "query", "--filter", "classification=SALARY_INCOME", "--json"))
		assert.Empty(t, ids)

		_, err := h.run("--tenant-id", "bob", "tags", "list", "1234567890:T1")
		assert.ErrorIs(t, err, common.ErrTenantIsolation)
	})

	t.Run("distribution", func(t *testing.T) {
		dist := decode[analytics.Distribution](t, h.mustRun("--tenant-id", "alice", "analytics", "distribution", "--json"))
		assert.Equal(t, 3, dist.TotalCount)
		assert.Len(t, dist.Buckets, 3)
	})

	t.Run("manual tags survive autotag", func(t *testing.T) {
		h.mustRun("--tenant-id", "alice", "tags", "apply", "1234567890:T3", "classification", "REFUND")
		h.mustRun("--tenant-id", "alice", "autotag")

		tags := decode[[]model.Tag](t, h.mustRun("--tenant-id", "alice", "tags", "list", "1234567890:T3", "--json"))
		for _, tag := range tags {
			if tag.Key == "classification" {
				assert.Equal(t, "REFUND", tag.Value)
			}
		}
	})
}

func TestRulesUpdateAndDryRun(t *testing.T) {
	h := newHarness(t)
	h.importStatement("alice")
	h.mustRun("--tenant-id", "alice", "autotag")

	table := decode[model.PatternTable](t, h.mustRun("rules", "show"))
	assert.Equal(t, 1, table.Version)

	path := h.writeFile("rules.json", `{"classification_patterns":[{"name":"SUBSCRIPTION","patterns":["\\bstarbucks\\b"]}]}`)
	out := h.mustRun("rules", "update", path)
	assert.Contains(t, out, "version 2")

	out = h.mustRun("checkpoint", "list")
	assert.Contains(t, out, "rules-update-")
	assert.Contains(t, out, "(auto)")

	changes := decode[[]engine.DryRunResult](t, h.mustRun("--tenant-id", "alice", "classify", "--dry-run", "--changed-only", "--json"))
	require.Len(t, changes, 1)
	assert.Equal(t, "1234567890:T3", changes[0].TransactionID)
	assert.Equal(t, "MICRO_TRANSACTION", changes[0].CurrentClassification)
	assert.Equal(t, model.ClassificationSubscription, changes[0].ProposedClassification)

	t.Run("classify applies the new rule", func(t *testing.T) {
		res := decode[model.ClassificationResult](t, h.mustRun("--tenant-id", "alice", "classify", "1234567890:T3", "--force", "--json"))
		assert.Equal(t, model.ClassificationSubscription, res.Classification)
	})

	t.Run("invalid rules file", func(t *testing.T) {
		bad := h.writeFile("bad.json", `{"classification_patterns":[{"name":"lowercase","patterns":["x"]}]}`)
		_, err := h.run("rules", "update", bad)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}

func TestCheckpointRestore(t *testing.T) {
	h := newHarness(t)
	h.importStatement("alice")

	out := h.mustRun("checkpoint", "create", "--tag", "before-tagging")
	assert.Contains(t, out, "Created checkpoint before-tagging (3 transactions, 0 tags")

	h.mustRun("--tenant-id", "alice", "autotag")
	ids := decode[[]string](t, h.mustRun("--tenant-id", "alice", "tags", "query", "--filter", "classification=SUBSCRIPTION", "--json"))
	require.Len(t, ids, 1)

	h.mustRun("checkpoint", "restore", "before-tagging")

	ids = decode[[]string](t, h.mustRun("--tenant-id", "alice", "tags", "query", "--filter", "classification=SUBSCRIPTION", "--json"))
	assert.Empty(t, ids)

	h.mustRun("checkpoint", "delete", "before-tagging")
	assert.Contains(t, h.mustRun("checkpoint", "list"), "No checkpoints found")
}

func TestViews(t *testing.T) {
	h := newHarness(t)
	h.importStatement("alice")
	h.mustRun("--tenant-id", "alice", "autotag")

	view := decode[model.AnalyticsView](t, h.mustRun("--tenant-id", "alice",
		"views", "create", "Subscriptions", "--filter", "classification=SUBSCRIPTION", "--ttl", "10m", "--json"))
	assert.Equal(t, model.ViewCompleted, view.Status)
	assert.Equal(t, 600, view.CacheTTLSeconds)
	require.NotNil(t, view.CachedMetrics)
	assert.Equal(t, 1, view.CachedMetrics.TotalCount)
	assert.Equal(t, "15.99", view.CachedMetrics.TotalAmount.StringFixed(2))

	out := h.mustRun("--tenant-id", "alice", "views", "get", view.ID)
	assert.Contains(t, out, "Subscriptions")
	assert.Contains(t, out, "15.99")

	views := decode[[]model.AnalyticsView](t, h.mustRun("--tenant-id", "alice", "views", "list", "--json"))
	require.Len(t, views, 1)

	_, err := h.run("--tenant-id", "bob", "views", "refresh", view.ID)
	assert.ErrorIs(t, err, common.ErrTenantIsolation)

	_, err = h.run("--tenant-id", "alice", "views", "create", "Empty")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
