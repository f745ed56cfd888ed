// Package directory defines the org-directory collaborator the engine uses to
// resolve roles and reporting lines. The directory itself is owned by the HR
// side of the platform; the engine only consumes this narrow interface.
package directory

import "context"

// CompanyRole names one role a person holds within one company.
type CompanyRole struct {
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

type Directory interface {
	// ManagerOf returns the person ID of the requestor's manager, or an empty
	// string when the person has no manager in the hierarchy.
	ManagerOf(ctx context.Context, companyID, personID string) (string, error)

	// RoleHolders returns every person holding the role in the company.
	RoleHolders(ctx context.Context, companyID, role string) ([]string, error)

	// HasRole reports whether the person holds the role in the company.
	HasRole(ctx context.Context, companyID, personID, role string) (bool, error)

	// RolesOf returns every role the person holds across all companies they
	// have access to.
	RolesOf(ctx context.Context, personID string) ([]CompanyRole, error)
}
