package cart

import "sync"

// UpdateListener receives a copy of the state after every applied snapshot or reset.
type UpdateListener func(view StateView)

// LoadingListener receives the loading flag around network round-trips.
type LoadingListener func(loading bool)

// State is the single canonical cart record consumers read from. Mutation is
// exclusive to the Service; everything outside this package only sees copies
// through View and the listener callbacks.
type State struct {
	mu               sync.RWMutex
	cartID           string
	items            []CartItem
	totals           CartTotals
	loading          bool
	loaded           bool
	err              error
	updateListeners  []UpdateListener
	loadingListeners []LoadingListener
}

// NewState returns an empty, guest-compatible state.
func NewState() *State {
	return &State{}
}

// View returns a read-only copy of the current state.
func (state *State) View() StateView {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.viewLocked()
}

func (state *State) viewLocked() StateView {
	return StateView{
		CartID:    state.cartID,
		Items:     cloneItems(state.items),
		Totals:    state.totals,
		IsLoading: state.loading,
		IsLoaded:  state.loaded,
		Err:       state.err,
	}
}

// OnUpdate registers a listener for applied snapshots and resets.
func (state *State) OnUpdate(listener UpdateListener) {
	if listener == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.updateListeners = append(state.updateListeners, listener)
}

// OnLoading registers a listener for the loading flag.
func (state *State) OnLoading(listener LoadingListener) {
	if listener == nil {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.loadingListeners = append(state.loadingListeners, listener)
}

func (state *State) applySnapshot(snapshot Snapshot, suppressNotify bool) StateView {
	state.mu.Lock()
	state.cartID = snapshot.CartID
	state.items = cloneItems(snapshot.Items)
	state.totals = snapshot.Totals
	state.loaded = true
	state.err = nil
	view := state.viewLocked()
	listeners := append([]UpdateListener(nil), state.updateListeners...)
	state.mu.Unlock()

	if !suppressNotify {
		for _, listener := range listeners {
			listener(view)
		}
	}
	return view
}

func (state *State) reset(suppressNotify bool) StateView {
	state.mu.Lock()
	state.cartID = ""
	state.items = nil
	state.totals = CartTotals{}
	state.loaded = false
	state.err = nil
	view := state.viewLocked()
	listeners := append([]UpdateListener(nil), state.updateListeners...)
	state.mu.Unlock()

	if !suppressNotify {
		for _, listener := range listeners {
			listener(view)
		}
	}
	return view
}

func (state *State) setLoading(loading bool) {
	state.mu.Lock()
	state.loading = loading
	listeners := append([]LoadingListener(nil), state.loadingListeners...)
	state.mu.Unlock()

	for _, listener := range listeners {
		listener(loading)
	}
}

func (state *State) setError(err error) StateView {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.err = err
	return state.viewLocked()
}

func (state *State) currentItems() []CartItem {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return cloneItems(state.items)
}
