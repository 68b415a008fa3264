package auth

// CanAccess reports whether account passes a role gate. A nil account never
// passes. Admins pass every role gate; this does not grant them any
// permission id (see HasPermission).
func CanAccess(account *Account, required ...RoleTag) bool {
	if account == nil {
		return false
	}
	if account.Role == RoleAdmin {
		return true
	}
	for _, r := range required {
		if account.Role == r {
			return true
		}
	}
	return false
}

// HasPermission reports whether the account's explicit permission set grants
// id. The role tag plays no part.
func HasPermission(account *Account, id string) bool {
	if account == nil {
		return false
	}
	return account.Permissions.Contains(id)
}
