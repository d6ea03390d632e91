package domain

import "strconv"

// Scope selects which owner's reviews a ledger operates on.
// The zero value is the global scope.
type Scope struct {
	userID int64
	owned  bool
}

// GlobalScope returns the scope covering every user's reviews.
func GlobalScope() Scope {
	return Scope{}
}

// UserScope returns the scope restricted to the given owner.
func UserScope(userID int64) Scope {
	return Scope{userID: userID, owned: true}
}

// UserID returns the owner and true for a user scope.
func (s Scope) UserID() (int64, bool) {
	return s.userID, s.owned
}

// IsGlobal reports whether the scope covers every user.
func (s Scope) IsGlobal() bool {
	return !s.owned
}

// Owns reports whether a row owned by userID is visible in this scope.
func (s Scope) Owns(userID int64) bool {
	return !s.owned || s.userID == userID
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	if !s.owned {
		return "global"
	}
	return "user:" + strconv.FormatInt(s.userID, 10)
}
