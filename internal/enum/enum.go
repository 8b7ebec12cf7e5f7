package enum

// ── Group A: State machines (CHECK constrained in DB, typed in database) ──
// See database.OrderStatus, database.ItemPaymentStatus, database.PaymentStatus.

// ── Group B: Staff roles (CHECK constrained in DB) ──

const (
	RoleManager = "MANAGER"
	RoleServer  = "SERVER"
	RoleCashier = "CASHIER"
	RoleKitchen = "KITCHEN"
)

// ── Group C: Event channels (no DB constraint) ──

const (
	ChannelFloor   = "floor"
	ChannelKitchen = "kitchen"
)

const (
	EventOrderCreated     = "order.created"
	EventOrderUpdated     = "order.updated"
	EventOrderDeleted     = "order.deleted"
	EventOrderCompleted   = "order.completed"
	EventItemsPrinted     = "items.printed"
	EventItemsFired       = "items.fired"
	EventPaymentCreated   = "payment.created"
	EventPaymentCompleted = "payment.completed"
	EventPaymentRefunded  = "payment.refunded"
	EventPaymentCancelled = "payment.cancelled"
)
