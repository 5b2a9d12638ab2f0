package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestLoadOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("SELECT 2;")},
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"notes.txt":  {Data: []byte("ignored")},
	}
	all, err := Load(fsys)
	require.NoError(t, err)
	require.Equal(t, []Migration{{Version: "0001_a", SQL: "SELECT 1;"}, {Version: "0002_b", SQL: "SELECT 2;"}}, all)

	pending := Pending(all, map[string]bool{"0001_a": true})
	require.Len(t, pending, 1)
	require.Equal(t, "0002_b", pending[0].Version)
}

func TestEmbeddedSchemaDeclaresConstraints(t *testing.T) {
	all, err := Load(Files)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	var schema string
	for _, m := range all {
		schema += m.SQL
	}
	for _, name := range []string{"uq_organizations_owner", "uq_invoices_number", "uq_payments_org_reference_completed"} {
		require.Contains(t, schema, name)
	}
	for _, table := range []string{"users", "organizations", "customers", "invoices", "payments", "invoice_activity", "idempotency_keys", "api_keys"} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
