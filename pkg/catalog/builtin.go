package catalog

// Builtin returns the Okta Core REST operations the Tool Surface knows
// about out of the box. It covers the entities a tenant-health or
// access-review question typically touches: users, groups, group rules,
// applications, and their membership/assignment edges.
func Builtin() *Catalog {
	return New([]Operation{
		{
			ID: "users.list", Method: "GET", Path: "/api/v1/users", Entity: "User", Kind: KindRead,
			Summary:    "List users, optionally filtered by status, search expression, or last updated time.",
			Parameters: `{"type":"object","properties":{"q":{"type":"string"},"filter":{"type":"string"},"search":{"type":"string"},"limit":{"type":"integer"}}}`,
		},
		{
			ID: "users.get", Method: "GET", Path: "/api/v1/users/{id}", Entity: "User", Kind: KindRead,
			Summary:    "Fetch a single user by ID or login.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "users.listGroups", Method: "GET", Path: "/api/v1/users/{id}/groups", Entity: "User", Kind: KindRead,
			Summary:    "List the groups a user belongs to.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "users.deactivate", Method: "POST", Path: "/api/v1/users/{id}/lifecycle/deactivate", Entity: "User", Kind: KindWrite,
			Summary:    "Deactivate a user account.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "groups.list", Method: "GET", Path: "/api/v1/groups", Entity: "Group", Kind: KindRead,
			Summary:    "List groups, optionally filtered by type or search expression.",
			Parameters: `{"type":"object","properties":{"q":{"type":"string"},"filter":{"type":"string"},"limit":{"type":"integer"}}}`,
		},
		{
			ID: "groups.get", Method: "GET", Path: "/api/v1/groups/{id}", Entity: "Group", Kind: KindRead,
			Summary:    "Fetch a single group by ID.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "groups.listMembers", Method: "GET", Path: "/api/v1/groups/{id}/users", Entity: "Group", Kind: KindRead,
			Summary:    "List the members of a group.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "groupRules.list", Method: "GET", Path: "/api/v1/groups/rules", Entity: "GroupRule", Kind: KindRead,
			Summary:    "List group membership rules.",
			Parameters: `{"type":"object","properties":{"limit":{"type":"integer"}}}`,
		},
		{
			ID: "apps.list", Method: "GET", Path: "/api/v1/apps", Entity: "Application", Kind: KindRead,
			Summary:    "List applications assigned to the org.",
			Parameters: `{"type":"object","properties":{"q":{"type":"string"},"filter":{"type":"string"},"limit":{"type":"integer"}}}`,
		},
		{
			ID: "apps.listUsers", Method: "GET", Path: "/api/v1/apps/{id}/users", Entity: "Application", Kind: KindRead,
			Summary:    "List users assigned to an application.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "apps.listGroups", Method: "GET", Path: "/api/v1/apps/{id}/groups", Entity: "Application", Kind: KindRead,
			Summary:    "List groups assigned to an application.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
		{
			ID: "logs.list", Method: "GET", Path: "/api/v1/logs", Entity: "SystemLog", Kind: KindRead,
			Summary:    "Query the System Log for events within a time range.",
			Parameters: `{"type":"object","properties":{"since":{"type":"string"},"until":{"type":"string"},"filter":{"type":"string"},"limit":{"type":"integer"}}}`,
		},
		{
			ID: "factors.list", Method: "GET", Path: "/api/v1/users/{id}/factors", Entity: "Factor", Kind: KindRead,
			Summary:    "List the MFA factors enrolled for a user.",
			Parameters: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
		},
	})
}
