package postgres

// ReconcileRepo composes the repositories into the surface the
// reconciliation loop consumes (reconcile.Store).
type ReconcileRepo struct {
	*TrialRepo
	*SubscriptionRepo
	*CompanyRepo
}

// NewReconcileRepo builds the composite repository.
func NewReconcileRepo(db *DB) *ReconcileRepo {
	return &ReconcileRepo{
		TrialRepo:        NewTrialRepo(db),
		SubscriptionRepo: NewSubscriptionRepo(db),
		CompanyRepo:      NewCompanyRepo(db),
	}
}
