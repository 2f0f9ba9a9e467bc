package sqlschema

// Builtin describes the read-only Okta-tenant mirror tables the SQL
// Schema View exposes to the Planner and ReAct loop. In a full deployment
// these tables are populated by a separate sync process outside this
// module's scope; the View only needs to know their shape.
func Builtin() *View {
	return NewView([]Table{
		{
			Name:    "okta_users",
			Summary: "One row per Okta user, refreshed on each sync cycle.",
			Columns: []Column{
				{Name: "user_id", Type: "text", Summary: "Okta user ID"},
				{Name: "login", Type: "text"},
				{Name: "email", Type: "text"},
				{Name: "status", Type: "text", Summary: "ACTIVE, DEPROVISIONED, SUSPENDED, etc."},
				{Name: "created_at", Type: "timestamptz"},
				{Name: "last_login_at", Type: "timestamptz"},
				{Name: "department", Type: "text"},
			},
		},
		{
			Name:    "okta_groups",
			Summary: "One row per Okta group.",
			Columns: []Column{
				{Name: "group_id", Type: "text"},
				{Name: "name", Type: "text"},
				{Name: "type", Type: "text", Summary: "OKTA_GROUP or APP_GROUP"},
				{Name: "description", Type: "text"},
			},
		},
		{
			Name:    "okta_group_memberships",
			Summary: "Many-to-many edge between okta_users and okta_groups.",
			Columns: []Column{
				{Name: "group_id", Type: "text"},
				{Name: "user_id", Type: "text"},
				{Name: "added_at", Type: "timestamptz"},
			},
		},
		{
			Name:    "okta_applications",
			Summary: "One row per application assigned to the org.",
			Columns: []Column{
				{Name: "app_id", Type: "text"},
				{Name: "label", Type: "text"},
				{Name: "status", Type: "text"},
				{Name: "sign_on_mode", Type: "text"},
			},
		},
		{
			Name:    "okta_app_assignments",
			Summary: "Many-to-many edge between okta_users and okta_applications.",
			Columns: []Column{
				{Name: "app_id", Type: "text"},
				{Name: "user_id", Type: "text"},
				{Name: "assigned_at", Type: "timestamptz"},
			},
		},
	})
}
