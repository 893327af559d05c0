package enum

// Order lifecycle statuses. The forward chain runs top to bottom; the last
// three are terminal or near-terminal side exits.
const (
	OrderStatusCreated     = "created"
	OrderStatusDesign      = "design"
	OrderStatusDesignDone  = "design_done"
	OrderStatusProduction  = "production"
	OrderStatusPrinted     = "printed"
	OrderStatusPostprocess = "postprocess"
	OrderStatusReady       = "ready"
	OrderStatusClosed      = "closed"
	OrderStatusCancelled   = "cancelled"
	OrderStatusDefect      = "defect"
)

const (
	NotificationStatusQueued = "queued"
	NotificationStatusSent   = "sent"
	NotificationStatusFailed = "failed"
)

// Staff roles.
const (
	RoleDirector  = "director"
	RoleManager   = "manager"
	RoleDesigner  = "designer"
	RoleMaster    = "master"
	RoleAssistant = "assistant"
)

const (
	ClientTypeRetail = "retail"
	ClientTypeDealer = "dealer"
)

// Material ledger actions.
const (
	LedgerActionReserve   = "reserve"
	LedgerActionConsume   = "consume"
	LedgerActionUnreserve = "unreserve"
)

const (
	NotifyChannelManual   = "manual"
	NotifyChannelSMS      = "sms"
	NotifyChannelWhatsApp = "whatsapp"
)
