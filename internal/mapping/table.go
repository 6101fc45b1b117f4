package mapping

import (
	"encoding/json"
	"fmt"
	"os"

	"remedian/internal/types"
)

// Table is the registry of resource mappings, keyed by kind. It is built
// once at startup and read-only thereafter.
type Table struct {
	byKind map[types.ResourceKind]*ResourceMapping
}

// Get returns the mapping for a kind.
func (t *Table) Get(kind types.ResourceKind) (*ResourceMapping, bool) {
	m, ok := t.byKind[kind]
	return m, ok
}

// Kinds returns the kinds present in the table.
func (t *Table) Kinds() []types.ResourceKind {
	out := make([]types.ResourceKind, 0, len(t.byKind))
	for _, k := range types.AllKinds {
		if _, ok := t.byKind[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// NewTable builds a Table from the given mappings, indexing each entry and
// rejecting duplicates and malformed entries.
func NewTable(mappings []ResourceMapping) (*Table, error) {
	t := &Table{byKind: make(map[types.ResourceKind]*ResourceMapping, len(mappings))}
	for i := range mappings {
		m := &mappings[i]
		if !m.Kind.Valid() {
			return nil, fmt.Errorf("mapping %d: unknown kind %q", i, m.Kind)
		}
		if _, dup := t.byKind[m.Kind]; dup {
			return nil, fmt.Errorf("duplicate mapping for kind %s", m.Kind)
		}
		if err := m.index(); err != nil {
			return nil, err
		}
		t.byKind[m.Kind] = m
	}
	return t, nil
}

// Load returns the mapping table for the deployment: the built-in defaults,
// or the contents of the JSON file at path when path is non-empty. The file
// replaces the defaults wholesale; partial overrides are not merged, so a
// deployment's mapping file is always the complete picture.
func Load(path string) (*Table, error) {
	if path == "" {
		return NewTable(defaultMappings())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file %s: %w", path, err)
	}
	var mappings []ResourceMapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", path, err)
	}
	return NewTable(mappings)
}

// defaultMappings is the built-in mapping table covering the CRM-mirrored
// kinds. Engine-owned kinds (job, schedule, problem) are served by typed
// repositories and need no mapping entry.
func defaultMappings() []ResourceMapping {
	return []ResourceMapping{
		{
			Kind:             types.KindAccount,
			Table:            "accounts",
			RemoteCollection: "/crm/v2/customerAccount",
			RemoteItem:       "/crm/v2/customerAccount/{id}",
			Fields: []FieldMapping{
				{Canonical: "name", Column: "name", RemoteField: "accountName"},
				{Canonical: "status", Column: "status", RemoteField: "statusCode",
					Enum: map[string]string{"active": "ACT", "suspended": "SUS", "terminated": "TRM"}},
				{Canonical: "segment", Column: "segment", RemoteField: "customerSegment"},
				{Canonical: "contact_name", Column: "contact_name", RemoteField: "contactName"},
				{Canonical: "contact_email", Column: "contact_email", RemoteField: "contactEmail"},
				{Canonical: "contact_phone", Column: "contact_phone", RemoteField: "contactPhone"},
				{Canonical: "migrated_by", Column: "migrated_by", RemoteField: "migratedBy", ReadOnly: true},
			},
		},
		{
			Kind:  types.KindService,
			Table: "services",
			// Services may be deployed remote in CRM-authoritative setups.
			RemoteCollection: "/crm/v2/subscription",
			RemoteItem:       "/crm/v2/subscription/{id}",
			Fields: []FieldMapping{
				{Canonical: "name", Column: "name", RemoteField: "serviceName"},
				{Canonical: "status", Column: "status", RemoteField: "statusCode",
					Enum: map[string]string{"active": "ACT", "suspended": "SUS", "terminated": "TRM"}},
				{Canonical: "service_type", Column: "service_type", RemoteField: "serviceType"},
				{Canonical: "solution", Column: "solution_doc", RemoteField: "solutionDocument"},
				{Canonical: "pic_name", Column: "pic_name", RemoteField: "picName"},
				{Canonical: "pic_email", Column: "pic_email", RemoteField: "picEmail"},
				{Canonical: "pic_phone", Column: "pic_phone", RemoteField: "picPhone"},
				{Canonical: "account", Column: "account_id", RemoteField: "customerAccountId",
					RefKind: types.KindAccount, RefNameColumn: "account_name", RefNameRemote: "customerAccountName"},
				{Canonical: "billing_account", Column: "billing_account_id", RemoteField: "billingAccountId",
					RefKind: types.KindBillingAccount, RefNameColumn: "billing_account_name", RefNameRemote: "billingAccountName"},
				{Canonical: "migrated_by", Column: "migrated_by", RemoteField: "migratedBy", ReadOnly: true},
			},
		},
		{
			Kind:             types.KindCart,
			Table:            "carts",
			RemoteCollection: "/crm/v2/shoppingCart",
			RemoteItem:       "/crm/v2/shoppingCart/{id}",
			Fields: []FieldMapping{
				{Canonical: "name", Column: "name", RemoteField: "cartName"},
				{Canonical: "status", Column: "status", RemoteField: "statusCode",
					Enum: map[string]string{"open": "OPN", "submitted": "SBM", "abandoned": "ABD"}},
				{Canonical: "account", Column: "account_id", RemoteField: "customerAccountId",
					RefKind: types.KindAccount, RefNameColumn: "account_name", RefNameRemote: "customerAccountName"},
				{Canonical: "item_count", Column: "item_count", RemoteField: "itemCount"},
			},
		},
		{
			Kind:             types.KindBillingAccount,
			Table:            "billing_accounts",
			RemoteCollection: "/crm/v2/billingAccount",
			RemoteItem:       "/crm/v2/billingAccount/{id}",
			Fields: []FieldMapping{
				{Canonical: "name", Column: "name", RemoteField: "billingAccountName"},
				{Canonical: "status", Column: "status", RemoteField: "statusCode",
					Enum: map[string]string{"active": "ACT", "closed": "CLS"}},
				{Canonical: "account", Column: "account_id", RemoteField: "customerAccountId",
					RefKind: types.KindAccount, RefNameColumn: "account_name", RefNameRemote: "customerAccountName"},
				{Canonical: "payment_term", Column: "payment_term", RemoteField: "paymentTerm"},
			},
		},
	}
}
