package constants

// Route prefixes shared by the router and the edge gate
const (
	APIPrefix           = "/api"
	DiagnosticsRoute    = "/api/diagnostics"
	PayPalWebhookRoute  = "/api/webhooks/paypal"
	AdminAuthRoute      = "/api/admin/auth"
	AdminSettingsRoute  = "/api/admin/settings"
	AdminCustomersRoute = "/api/admin/customers"
	CronRemindersRoute  = "/api/cron/reminders"

	// Admin UI paths guarded by the session check
	AdminUIPrefix = "/admin"
	AdminLogin    = "/admin/login"
)
