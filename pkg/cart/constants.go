package cart

const (
	operationRefresh        = "refresh"
	operationAddItem        = "add_item"
	operationUpdateQuantity = "update_quantity"
	operationRemoveItem     = "remove_item"
	operationClear          = "clear"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	sourceGuest  = "guest"
	sourceServer = "server"

	// PlaceholderName labels items whose name could not be resolved from any tier.
	PlaceholderName = "Unnamed product"

	// FallbackImage is served when neither payload, previous state, nor the
	// metadata cache knows a product image.
	FallbackImage = "/assets/img/placeholder-product.png"

	defaultAbsoluteTolerance = 0.5
	defaultRelativeTolerance = 0.01

	syntheticIDPrefix = "item"
)
