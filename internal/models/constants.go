package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDeclined  = "declined"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

const (
	// DefaultResponseWindowSec is the therapist response deadline. The client
	// variants used 120-180s windows; 180s is the single documented constant.
	DefaultResponseWindowSec = 180

	// DefaultRadiusKm limits how far a therapist may be from the customer.
	DefaultRadiusKm = 10.0

	// DefaultSnapshotTTL lifetime of a status snapshot in Redis, seconds.
	DefaultSnapshotTTL = 24 * 60 * 60

	// WorkerQueueSize size of the in-memory worker queues.
	WorkerQueueSize = 1000

	// RespondRateLimit requests per window allowed on the respond endpoint
	// per remote address.
	RespondRateLimit  = 20
	RespondRateWindow = 60 // seconds

	// DefaultExportRangeMonthsBefore / After bound the default export period.
	DefaultExportRangeMonthsBefore = 1
	DefaultExportRangeMonthsAfter  = 2
)
