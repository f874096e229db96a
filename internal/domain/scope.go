package domain

// ScopeRepository returns the view of repo that belongs to userID.
//
// A repository offering WithUser(userID) is asked for a scoped view. One that
// reports a different UserID() is rebuilt for userID via ForUser, sharing its
// underlying connection. Anything else, or an empty userID, is returned as is.
func ScopeRepository[R any](repo R, userID string) R {
	if userID == "" {
		return repo
	}
	if scoper, ok := any(repo).(interface{ WithUser(string) R }); ok {
		return scoper.WithUser(userID)
	}
	if bound, ok := any(repo).(interface {
		UserID() string
		ForUser(string) R
	}); ok && bound.UserID() != userID {
		return bound.ForUser(userID)
	}
	return repo
}
