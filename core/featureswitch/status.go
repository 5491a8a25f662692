package featureswitch

// RoleRoot is the privileged role exempt from feature restrictions.
const RoleRoot = "root"

// FailOpenStatus is used whenever the feature status cannot be determined:
// an outage of the feature-status API must never block the gated workflow.
func FailOpenStatus() DetailedStatus {
	return DetailedStatus{
		BillingStatus:     []FeatureStatusItem{},
		MaintenanceStatus: []FeatureStatusItem{},
		CombinedStatus: CombinedStatus{
			BillingStatus:     DomainStatus{Message: MsgFeatureActive},
			MaintenanceStatus: DomainStatus{Message: MsgFeatureActive},
			Message:           MsgStatusUnavailable,
		},
	}
}

// Normalize returns raw unchanged when it is present, consistent and the fetch succeeded,
// and the fail-open default otherwise.
func Normalize(raw *DetailedStatus, fetchFailed bool) DetailedStatus {
	if fetchFailed || raw == nil || !raw.CombinedStatus.Valid() {
		return FailOpenStatus()
	}
	return *raw
}

// RootBypass returns a never-blocked status for the root role, nil for anyone else.
func RootBypass(role string) *DetailedStatus {
	return RootBypassFor(RoleRoot)(role)
}

// RootBypassFor builds a bypass policy for the given root role literal.
func RootBypassFor(rootRole string) func(role string) *DetailedStatus {
	return func(role string) *DetailedStatus {
		if rootRole == "" || role != rootRole {
			return nil
		}
		return &DetailedStatus{
			BillingStatus:     []FeatureStatusItem{},
			MaintenanceStatus: []FeatureStatusItem{},
			CombinedStatus: CombinedStatus{
				BillingStatus:     DomainStatus{Message: MsgRootBypass},
				MaintenanceStatus: DomainStatus{Message: MsgRootBypass},
				Message:           MsgRootBypass,
			},
		}
	}
}

// Combine aggregates evaluated items of both domains.
// An item with IsEnabled set is an active restriction.
// When both domains are blocked, the billing message wins.
func Combine(billing, maintenance []FeatureStatusItem) CombinedStatus {
	billingStatus := domainStatusOf(billing)
	maintenanceStatus := domainStatusOf(maintenance)

	cs := CombinedStatus{
		BillingBlocked:     billingStatus.IsEnabled,
		MaintenanceBlocked: maintenanceStatus.IsEnabled,
		BillingStatus:      billingStatus,
		MaintenanceStatus:  maintenanceStatus,
		Message:            MsgFeatureActive,
	}
	cs.IsEnabled = cs.BillingBlocked || cs.MaintenanceBlocked

	switch {
	case cs.BillingBlocked:
		cs.Message = billingStatus.Message
	case cs.MaintenanceBlocked:
		cs.Message = maintenanceStatus.Message
	}
	return cs
}

func domainStatusOf(items []FeatureStatusItem) DomainStatus {
	for _, item := range items {
		if item.IsEnabled {
			msg := item.Message
			if msg == "" {
				msg = "Feature " + item.FeatureName + " is restricted"
			}
			return DomainStatus{IsEnabled: true, Message: msg}
		}
	}
	return DomainStatus{Message: MsgFeatureActive}
}
