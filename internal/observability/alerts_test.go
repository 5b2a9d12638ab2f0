package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/Koushith/Web3-Invoice-sub000/internal/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

func loadAlertRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "invoicing.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	for _, g := range file.Groups {
		if g.Name == "invoicing" {
			return g.Rules
		}
	}
	t.Fatal("invoicing alert group missing")
	return nil
}

func TestInvoicingAlertRules(t *testing.T) {
	rules := loadAlertRules(t)
	severities := map[string]string{
		"HighErrorRate":            "critical",
		"RecurrenceRunFailing":     "critical",
		"RecurringInvoiceFailures": "warning",
		"PaymentRejectionSpike":    "warning",
	}
	require.Len(t, rules, len(severities))

	for _, rule := range rules {
		want, ok := severities[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		require.Equal(t, want, rule.Labels["severity"], rule.Alert)
		require.True(t, strings.HasPrefix(rule.Annotations["runbook"], "docs/runbook-invoicing.md#"), rule.Alert)
		require.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		require.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		require.NotEmpty(t, rule.Expr, rule.Alert)
		require.NotEmpty(t, rule.For, rule.Alert)
	}
}

var metricName = regexp.MustCompile(`invoicing_[a-z_]+`)

// Every series an alert reads must be one the service exports, so a renamed
// collector cannot silently disarm an alert.
func TestAlertExpressionsReferenceExportedMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("recurrence:run").End(errors.New("boom"))
	jobs.AddItems("recurrence:run", "failed", 1)
	metrics.PaymentRecorded("bank_transfer")
	metrics.PaymentRejected("duplicate_reference")
	metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	families, err := metrics.registry.Gather()
	require.NoError(t, err)
	exported := map[string]bool{}
	for _, f := range families {
		exported[f.GetName()] = true
	}

	for _, rule := range loadAlertRules(t) {
		for _, name := range metricName.FindAllString(rule.Expr, -1) {
			base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(name, "_bucket"), "_sum"), "_count")
			require.True(t, exported[base], "rule %s reads unknown metric %s", rule.Alert, name)
		}
	}
}
