package auth

import "fmt"

// Role is one of the fixed role names shared by every service on the
// platform. The set is closed: adding a role requires a coordinated
// deployment, so free-form strings are rejected at the edges and the wire
// representation stays a plain string for interoperability.
type Role string

const (
	// RoleCarOwner is assigned to end users who register vehicles and book repairs.
	RoleCarOwner Role = "CAR_OWNER"
	// RoleMechanic is assigned to mechanics offering repair services.
	RoleMechanic Role = "MECHANIC"
	// RolePartsDealer is assigned to parts dealers.
	RolePartsDealer Role = "PARTS_DEALER"
	// RoleAdmin grants platform administration endpoints.
	RoleAdmin Role = "ADMIN"
	// RoleServices is the machine role: it marks service accounts used for
	// trusted service-to-service calls.
	RoleServices Role = "SERVICES"
)

var knownRoles = map[Role]struct{}{
	RoleCarOwner:    {},
	RoleMechanic:    {},
	RolePartsDealer: {},
	RoleAdmin:       {},
	RoleServices:    {},
}

// ParseRole converts a wire-level role name into a [Role]. It returns
// [ErrInvalidRole] for anything outside the closed enumeration.
func ParseRole(name string) (Role, error) {
	r := Role(name)
	if _, ok := knownRoles[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return r, nil
}

// ParseRoles converts a slice of wire-level role names, rejecting the whole
// slice on the first unknown name.
func ParseRoles(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// RoleNames converts roles back to their wire representation.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	return names
}
