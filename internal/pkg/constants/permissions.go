package constants

const (
	CreateListing = "create_listing"
	PlaceBid      = "place_bid"
	Checkout      = "checkout"
	AdjustCredits = "adjust_credits"
)

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	CreateListing: {Student, Admin},
	PlaceBid:      {Student, Admin},
	Checkout:      {Student, Admin},
	AdjustCredits: {Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
