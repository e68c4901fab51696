// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Products
	KeyProductCreated  = "product.created"
	KeyProductUpdated  = "product.updated"
	KeyProductDeleted  = "product.deleted"
	KeyProductNotFound = "product.not_found"

	// Variants
	KeyVariantUpdated  = "variant.updated"
	KeyVariantDeleted  = "variant.deleted"
	KeyVariantNotFound = "variant.not_found"

	// Stores
	KeyStoreCreated            = "store.created"
	KeyStoreUpdated            = "store.updated"
	KeyStoreDeleted            = "store.deleted"
	KeyStoreNotFound           = "store.not_found"
	KeyStoreLocationsRefreshed = "store.locations_refreshed"
	KeyLocationUpdated         = "location.updated"
	KeyLocationNotFound        = "location.not_found"

	// Inventory
	KeyInventoryInsufficient = "inventory.insufficient"

	// Sync
	KeySyncStarted   = "sync.started"
	KeySyncCancelled = "sync.cancelled"
	KeySyncSummary   = "sync.summary"
	KeySyncNotFound  = "sync_result.not_found"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"
)
