package permission

import "strings"

// Features guarded by the dashboard
const (
	FeatureEvents        = "Events"
	FeatureCategories    = "Categories"
	FeatureBookings      = "Bookings"
	FeatureTransactions  = "Transactions"
	FeatureCustomers     = "Customers"
	FeatureUsers         = "Users"
	FeatureRoles         = "Roles"
	FeatureNotifications = "Notifications"
	FeatureBoost         = "Boost"
	FeatureAnalytics     = "Analytics"
	FeatureSecurity      = "Security"
	FeatureSettings      = "Settings"
)

// Actions
const (
	View   = "View"
	Create = "Create"
	Update = "Update"
	Delete = "Delete"
	Export = "Export"
)

var crud = []string{View, Create, Update, Delete}

// Catalog lists every feature with the actions the dashboard checks for it
var Catalog = []Grant{
	{Feature: FeatureAnalytics, Permissions: []string{View}},
	{Feature: FeatureBookings, Permissions: []string{View, Export}},
	{Feature: FeatureBoost, Permissions: []string{View, Create}},
	{Feature: FeatureCategories, Permissions: crud},
	{Feature: FeatureCustomers, Permissions: []string{View}},
	{Feature: FeatureEvents, Permissions: crud},
	{Feature: FeatureNotifications, Permissions: []string{View, Update}},
	{Feature: FeatureRoles, Permissions: crud},
	{Feature: FeatureSecurity, Permissions: []string{View}},
	{Feature: FeatureSettings, Permissions: []string{View, Update}},
	{Feature: FeatureTransactions, Permissions: []string{View, Export}},
	{Feature: FeatureUsers, Permissions: crud},
}

// InCatalog reports whether feature/perm is a pair the dashboard knows
func InCatalog(feature, perm string) bool {
	for _, g := range Catalog {
		if !strings.EqualFold(g.Feature, feature) {
			continue
		}
		for _, p := range g.Permissions {
			if strings.EqualFold(p, perm) {
				return true
			}
		}
	}
	return false
}
