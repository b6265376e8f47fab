package cart

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ServerGateway is the remote cart backend. Implementations return the
// decoded JSON response object for 2xx results and *HTTPError for the rest.
type ServerGateway interface {
	FetchCart(ctx context.Context, token string) (map[string]any, error)
	AddItem(ctx context.Context, token string, productID string, quantity int64, fields map[string]any) (map[string]any, error)
	UpdateItem(ctx context.Context, token string, itemID string, quantity int64) (map[string]any, error)
	RemoveItem(ctx context.Context, token string, itemID string) (map[string]any, error)
	ClearCart(ctx context.Context, token string) (map[string]any, error)
}

// TokenProvider supplies the current bearer credential. An empty string means
// the session is a guest and operations route to the guest store.
type TokenProvider interface {
	Token(ctx context.Context) string
}

const flightKeyRefresh = "refresh"

// Service is the synchronization orchestrator: the only writer of the cart
// state. It routes each operation to the guest store or the server gateway,
// applies optimistic results, and falls back to a forced refresh whenever a
// server echo is too ambiguous to trust.
type Service struct {
	guest      *GuestCart
	gateway    ServerGateway
	tokens     TokenProvider
	state      *State
	cache      *MetadataCache
	reconcile  ReconcileConfig
	normalizer *Normalizer
	logger     OperationLogger
	flight     singleflight.Group
	sequence   atomic.Uint64
}

// NewService wires a Service.
func NewService(storage GuestStorage, gateway ServerGateway, tokens TokenProvider, options ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: guest storage dependency is nil", ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: server gateway dependency is nil", ErrInvalidServiceConfig)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token provider dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		gateway:   gateway,
		tokens:    tokens,
		state:     NewState(),
		cache:     NewMetadataCache(),
		reconcile: DefaultReconcileConfig(),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	guestCart, err := NewGuestCart(storage, service.cache)
	if err != nil {
		return nil, err
	}
	service.guest = guestCart
	service.normalizer = NewNormalizer(service.cache, service.reconcile)
	return service, nil
}

// State returns a read-only copy of the canonical cart state.
func (service *Service) State() StateView {
	return service.state.View()
}

// OnUpdate registers a listener receiving the full state after every change.
func (service *Service) OnUpdate(listener UpdateListener) {
	service.state.OnUpdate(listener)
}

// OnLoading registers a listener receiving the loading flag around round-trips.
func (service *Service) OnLoading(listener LoadingListener) {
	service.state.OnLoading(listener)
}

// Refresh synchronizes the state from the active backend. Concurrent callers
// attach to the in-flight refresh instead of issuing a second request. When
// not forced and a snapshot was already applied, the current state is
// returned without a round-trip.
func (service *Service) Refresh(ctx context.Context, force bool) (StateView, error) {
	if !force {
		view := service.state.View()
		if view.IsLoaded {
			return view, nil
		}
	}
	result, err, _ := service.flight.Do(flightKeyRefresh, func() (any, error) {
		return service.doRefresh(ctx)
	})
	view, ok := result.(StateView)
	if !ok {
		view = service.state.View()
	}
	return view, err
}

func (service *Service) doRefresh(ctx context.Context) (StateView, error) {
	token := service.tokens.Token(ctx)
	if token == "" {
		view := service.applyGuestItems(service.guest.Read(ctx))
		service.logOperation(ctx, OperationLog{Operation: operationRefresh, Source: sourceGuest, CartID: view.CartID})
		return view, nil
	}

	sequence := service.sequence.Add(1)
	service.state.setLoading(true)
	defer service.state.setLoading(false)

	payload, err := service.gateway.FetchCart(ctx, token)
	if err != nil {
		view, resolvedErr := service.resolveServerError(err)
		service.logOperation(ctx, OperationLog{Operation: operationRefresh, Source: sourceServer, Error: resolvedErr})
		return view, resolvedErr
	}
	view := service.applyServerPayload(sequence, payload)
	service.logOperation(ctx, OperationLog{Operation: operationRefresh, Source: sourceServer, CartID: view.CartID})
	return view, nil
}

// AddItem adds quantity of a product. The server path trusts the returned
// snapshot only when it carries items; an empty echo could mean "added but
// not echoed" rather than "cart now empty", so it triggers a forced refresh.
func (service *Service) AddItem(ctx context.Context, productID ProductID, quantity Quantity, fields ItemFields) (StateView, error) {
	if productID.String() == "" {
		return service.state.View(), fmt.Errorf("%w: empty value", ErrInvalidProductID)
	}

	token := service.tokens.Token(ctx)
	if token == "" {
		items, err := service.guest.AddOrMerge(ctx, productID, quantity.Int64(), fields)
		if err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationAddItem, Source: sourceGuest, ProductID: productID.String(), Quantity: quantity.Int64(), Error: err})
			return service.state.View(), err
		}
		view := service.applyGuestItems(items)
		service.logOperation(ctx, OperationLog{Operation: operationAddItem, Source: sourceGuest, ProductID: productID.String(), Quantity: quantity.Int64()})
		return view, nil
	}

	sequence := service.sequence.Add(1)
	service.state.setLoading(true)
	defer service.state.setLoading(false)

	payload, err := service.gateway.AddItem(ctx, token, productID.String(), quantity.Int64(), encodeItemFields(fields))
	if err != nil {
		view, mutationErr := service.resolveMutationError(err)
		service.logOperation(ctx, OperationLog{Operation: operationAddItem, Source: sourceServer, ProductID: productID.String(), Quantity: quantity.Int64(), Error: mutationErr})
		return view, mutationErr
	}

	snapshot := service.normalizer.Normalize(payload, service.state.currentItems())
	if len(snapshot.Items) == 0 {
		service.logOperation(ctx, OperationLog{Operation: operationAddItem, Source: sourceServer, ProductID: productID.String(), Quantity: quantity.Int64()})
		return service.Refresh(ctx, true)
	}
	view := service.applyServerSnapshot(sequence, snapshot)
	service.logOperation(ctx, OperationLog{Operation: operationAddItem, Source: sourceServer, ProductID: productID.String(), Quantity: quantity.Int64(), CartID: view.CartID})
	return view, nil
}

// UpdateQuantity sets an item's quantity; zero or negative delegates to removal.
func (service *Service) UpdateQuantity(ctx context.Context, itemID ItemID, quantity int64) (StateView, error) {
	if itemID.String() == "" {
		return service.state.View(), fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	if quantity <= 0 {
		return service.RemoveItem(ctx, itemID)
	}

	token := service.tokens.Token(ctx)
	if token == "" {
		items, err := service.guest.UpdateQuantity(ctx, itemID, quantity)
		if err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationUpdateQuantity, Source: sourceGuest, ItemID: itemID.String(), Quantity: quantity, Error: err})
			return service.state.View(), err
		}
		view := service.applyGuestItems(items)
		service.logOperation(ctx, OperationLog{Operation: operationUpdateQuantity, Source: sourceGuest, ItemID: itemID.String(), Quantity: quantity})
		return view, nil
	}

	sequence := service.sequence.Add(1)
	service.state.setLoading(true)
	defer service.state.setLoading(false)

	payload, err := service.gateway.UpdateItem(ctx, token, itemID.String(), quantity)
	if err != nil {
		view, mutationErr := service.resolveMutationError(err)
		service.logOperation(ctx, OperationLog{Operation: operationUpdateQuantity, Source: sourceServer, ItemID: itemID.String(), Quantity: quantity, Error: mutationErr})
		return view, mutationErr
	}

	snapshot := service.normalizer.Normalize(payload, service.state.currentItems())
	if len(snapshot.Items) == 0 {
		service.logOperation(ctx, OperationLog{Operation: operationUpdateQuantity, Source: sourceServer, ItemID: itemID.String(), Quantity: quantity})
		return service.Refresh(ctx, true)
	}
	view := service.applyServerSnapshot(sequence, snapshot)
	service.logOperation(ctx, OperationLog{Operation: operationUpdateQuantity, Source: sourceServer, ItemID: itemID.String(), Quantity: quantity, CartID: view.CartID})
	return view, nil
}

// RemoveItem deletes a line. The server echo is applied when it carries items
// or a non-zero total; an entirely empty echo is disambiguated by refresh.
func (service *Service) RemoveItem(ctx context.Context, itemID ItemID) (StateView, error) {
	if itemID.String() == "" {
		return service.state.View(), fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}

	token := service.tokens.Token(ctx)
	if token == "" {
		items, err := service.guest.Remove(ctx, itemID)
		if err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationRemoveItem, Source: sourceGuest, ItemID: itemID.String(), Error: err})
			return service.state.View(), err
		}
		view := service.applyGuestItems(items)
		service.logOperation(ctx, OperationLog{Operation: operationRemoveItem, Source: sourceGuest, ItemID: itemID.String()})
		return view, nil
	}

	sequence := service.sequence.Add(1)
	service.state.setLoading(true)
	defer service.state.setLoading(false)

	payload, err := service.gateway.RemoveItem(ctx, token, itemID.String())
	if err != nil {
		view, mutationErr := service.resolveMutationError(err)
		service.logOperation(ctx, OperationLog{Operation: operationRemoveItem, Source: sourceServer, ItemID: itemID.String(), Error: mutationErr})
		return view, mutationErr
	}

	snapshot := service.normalizer.Normalize(payload, service.state.currentItems())
	if len(snapshot.Items) == 0 && snapshot.Totals.Total == 0 {
		service.logOperation(ctx, OperationLog{Operation: operationRemoveItem, Source: sourceServer, ItemID: itemID.String()})
		return service.Refresh(ctx, true)
	}
	view := service.applyServerSnapshot(sequence, snapshot)
	service.logOperation(ctx, OperationLog{Operation: operationRemoveItem, Source: sourceServer, ItemID: itemID.String(), CartID: view.CartID})
	return view, nil
}

// Clear empties the cart on the active backend and resets the state.
func (service *Service) Clear(ctx context.Context) (StateView, error) {
	token := service.tokens.Token(ctx)
	if token == "" {
		if err := service.guest.Clear(ctx); err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationClear, Source: sourceGuest, Error: err})
			return service.state.View(), err
		}
		view := service.state.reset(false)
		service.logOperation(ctx, OperationLog{Operation: operationClear, Source: sourceGuest})
		return view, nil
	}

	sequence := service.sequence.Add(1)
	service.state.setLoading(true)
	defer service.state.setLoading(false)

	payload, err := service.gateway.ClearCart(ctx, token)
	if err != nil {
		view, mutationErr := service.resolveMutationError(err)
		service.logOperation(ctx, OperationLog{Operation: operationClear, Source: sourceServer, Error: mutationErr})
		return view, mutationErr
	}

	snapshot := service.normalizer.Normalize(payload, service.state.currentItems())
	var view StateView
	if len(snapshot.Items) > 0 {
		view = service.applyServerSnapshot(sequence, snapshot)
	} else {
		view = service.state.reset(false)
	}
	service.logOperation(ctx, OperationLog{Operation: operationClear, Source: sourceServer, CartID: view.CartID})
	return view, nil
}

func (service *Service) applyGuestItems(items []CartItem) StateView {
	snapshot := Snapshot{
		Items:  items,
		Totals: service.reconcile.ComputeTotals(items, TotalsOverrides{}),
	}
	return service.state.applySnapshot(snapshot, false)
}

func (service *Service) applyServerPayload(sequence uint64, payload map[string]any) StateView {
	snapshot := service.normalizer.Normalize(payload, service.state.currentItems())
	return service.applyServerSnapshot(sequence, snapshot)
}

// applyServerSnapshot discards responses that lost the race against a newer
// request, so a slow round-trip can never overwrite fresher state.
func (service *Service) applyServerSnapshot(sequence uint64, snapshot Snapshot) StateView {
	if sequence != service.sequence.Load() {
		return service.state.View()
	}
	return service.state.applySnapshot(snapshot, false)
}

// resolveServerError maps a refresh failure onto state transitions: an empty
// cart signal resolves to a valid empty snapshot, an expired credential
// resets the state and still propagates, everything else is surfaced.
func (service *Service) resolveServerError(err error) (StateView, error) {
	if IsEmptyCartSignal(err) {
		return service.state.applySnapshot(Snapshot{}, false), nil
	}
	if IsAuthExpired(err) {
		view := service.state.reset(false)
		return view, err
	}
	view := service.state.setError(err)
	return view, err
}

// resolveMutationError rethrows mutation failures, resetting first when the
// credential expired so stale authenticated data is never shown.
func (service *Service) resolveMutationError(err error) (StateView, error) {
	if IsAuthExpired(err) {
		return service.state.reset(false), err
	}
	return service.state.setError(err), err
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func encodeItemFields(fields ItemFields) map[string]any {
	payload := map[string]any{}
	if fields.Price != nil {
		payload["price"] = *fields.Price
	}
	if fields.Name != "" {
		payload["name"] = fields.Name
	}
	if fields.Image != "" {
		payload["image"] = fields.Image
	}
	if fields.InstallationPrice != nil {
		payload["installation_price"] = *fields.InstallationPrice
	}
	for key, value := range fields.Raw {
		if _, exists := payload[key]; !exists {
			payload[key] = value
		}
	}
	return payload
}
