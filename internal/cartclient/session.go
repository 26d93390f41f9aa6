package cartclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	opLoad   = "cartclient.load"
	opAdd    = "cartclient.add"
	opUpdate = "cartclient.update"
	opRemove = "cartclient.remove"
	opClear  = "cartclient.clear"
	opSync   = "cartclient.sync"
)

var errMissingBackend = errors.New("cartclient: backend is required")

// SessionConfig wires the collaborators of a cart session.
type SessionConfig struct {
	Backend  Backend
	Store    *Store
	Notifier Notifier
	Cache    SnapshotCache
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Session coordinates the backend with the client mirror for one shopper.
type Session struct {
	backend  Backend
	store    *Store
	notifier Notifier
	cache    SnapshotCache
	clock    func() time.Time
	logger   *zap.Logger

	syncing atomic.Bool
	busyMu  sync.Mutex
	busy    map[string]struct{}
}

// NewSession validates the configuration and returns a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		backend:  cfg.Backend,
		store:    store,
		notifier: notifier,
		cache:    cfg.Cache,
		clock:    clock,
		logger:   logger,
		busy:     map[string]struct{}{},
	}, nil
}

// Store exposes the mirror for rendering and subscriptions.
func (s *Session) Store() *Store {
	return s.store
}

// Load replaces the mirror with the backend cart. On a transient failure the
// last cached snapshot is shown instead and marked stale.
func (s *Session) Load(ctx context.Context) error {
	s.store.Dispatch(LoadStarted{})
	defer s.store.Dispatch(LoadFinished{})

	items, err := s.backend.Load(ctx)
	if err == nil {
		s.replace(items)
		return nil
	}
	if errors.Is(err, ErrTransient) {
		if cached, ok := s.cachedItems(); ok {
			s.store.Dispatch(ReplaceItems{Items: cached, Stale: true})
			s.notifier.Notify(Notification{
				Kind:    KindWarning,
				Title:   "Offline",
				Message: "Showing your last saved cart",
			})
			s.logger.Warn("cart load fell back to cached snapshot", zap.Error(err))
			return nil
		}
	}
	return s.fail(opLoad, "", err, "Failed to load cart")
}

// Add puts quantity units of product into the cart.
func (s *Session) Add(ctx context.Context, product Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	release, err := s.acquire(product.ID)
	if err != nil {
		return err
	}
	defer release()

	items, err := s.backend.Add(ctx, product, quantity)
	if err != nil {
		return s.fail(opAdd, product.ID, err, "Failed to add item to cart")
	}
	s.replace(items)
	s.notifier.Notify(Notification{
		Kind:    KindInfo,
		Title:   "Added to cart",
		Message: fmt.Sprintf("%s has been added to your cart", product.Name),
	})
	return nil
}

// UpdateQuantity sets the quantity of a line. A quantity above stock triggers
// an immediate reconciliation so the mirror shows real availability.
func (s *Session) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	release, err := s.acquire(productID)
	if err != nil {
		return err
	}
	items, err := s.backend.UpdateQuantity(ctx, productID, quantity)
	release()
	if err != nil {
		failure := s.fail(opUpdate, productID, err, "Failed to update cart")
		if errors.Is(err, ErrInsufficientStock) {
			if _, syncErr := s.Sync(ctx); syncErr != nil {
				s.logger.Warn("reconciliation after stock rejection failed", zap.Error(syncErr))
			}
		}
		return failure
	}
	s.replace(items)
	return nil
}

// Remove drops a line from the cart.
func (s *Session) Remove(ctx context.Context, productID string) error {
	release, err := s.acquire(productID)
	if err != nil {
		return err
	}
	defer release()

	name := s.itemName(productID)
	items, err := s.backend.Remove(ctx, productID)
	if err != nil {
		return s.fail(opRemove, productID, err, "Failed to remove item from cart")
	}
	s.replace(items)
	message := "Item has been removed from your cart"
	if name != "" {
		message = fmt.Sprintf("%s has been removed from your cart", name)
	}
	s.notifier.Notify(Notification{Kind: KindInfo, Title: "Removed from cart", Message: message})
	return nil
}

// Clear empties the cart. Checkout passes notify=false because the order
// confirmation replaces the toast.
func (s *Session) Clear(ctx context.Context, notify bool) error {
	items, err := s.backend.Clear(ctx)
	if err != nil {
		return s.fail(opClear, "", err, "Failed to clear cart")
	}
	s.replace(items)
	if notify {
		s.notifier.Notify(Notification{
			Kind:    KindInfo,
			Title:   "Cart cleared",
			Message: "All items have been removed from your cart",
		})
	}
	return nil
}

// Sync reconciles the cart and reports whether the pass ran. A request made
// while another pass is in flight is dropped.
func (s *Session) Sync(ctx context.Context) (bool, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		s.logger.Debug("cart sync dropped while another is in flight")
		return false, nil
	}
	defer s.syncing.Store(false)

	s.store.Dispatch(SyncStarted{})
	result, err := s.backend.Sync(ctx)
	s.store.Dispatch(SyncFinished{At: s.clock().UTC(), Succeeded: err == nil})
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			s.reset()
		}
		s.logError(opSync, reasonOf(err), err)
		return true, err
	}

	s.replace(result.Items)
	for _, notification := range changeNotifications(result.Changes) {
		s.notifier.Notify(notification)
	}
	if !result.Changes.Empty() {
		s.logger.Info("cart reconciled",
			zap.Int("removed", len(result.Changes.Removed)),
			zap.Int("updated", len(result.Changes.Updated)))
	}
	return true, nil
}

// StartSync starts a scheduler that reconciles the cart every interval while
// ctx lives. Ticks are skipped when the mirror is empty.
func (s *Session) StartSync(ctx context.Context, interval time.Duration) (*Scheduler, error) {
	scheduler, err := NewScheduler(interval, s.scheduledSync)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Start(ctx); err != nil {
		return nil, err
	}
	return scheduler, nil
}

func (s *Session) scheduledSync(ctx context.Context) {
	if len(s.store.State().Items) == 0 {
		return
	}
	_, _ = s.Sync(ctx)
}

func (s *Session) acquire(productID string) (func(), error) {
	productID = strings.TrimSpace(productID)
	s.busyMu.Lock()
	if _, taken := s.busy[productID]; taken {
		s.busyMu.Unlock()
		return nil, ErrItemBusy
	}
	s.busy[productID] = struct{}{}
	s.busyMu.Unlock()
	s.store.Dispatch(MarkBusy{ProductID: productID, Busy: true})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.busyMu.Lock()
			delete(s.busy, productID)
			s.busyMu.Unlock()
			s.store.Dispatch(MarkBusy{ProductID: productID, Busy: false})
		})
	}, nil
}

func (s *Session) replace(items []Item) {
	s.store.Dispatch(ReplaceItems{Items: items})
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(items); err != nil {
		s.logger.Warn("cart snapshot not saved", zap.Error(err))
	}
}

func (s *Session) cachedItems() ([]Item, bool) {
	if s.cache == nil {
		return nil, false
	}
	items, ok, err := s.cache.Load()
	if err != nil {
		s.logger.Warn("cart snapshot unreadable", zap.Error(err))
		return nil, false
	}
	return items, ok
}

func (s *Session) reset() {
	s.store.Dispatch(Reset{})
}

func (s *Session) itemName(productID string) string {
	for _, item := range s.store.State().Items {
		if item.ProductID == productID {
			return item.Name
		}
	}
	return ""
}

// fail surfaces err to the shopper and returns it unchanged.
func (s *Session) fail(operation, productID string, err error, retryMessage string) error {
	var stockErr *InsufficientStockError
	var requestErr *RequestError
	switch {
	case errors.As(err, &stockErr):
		s.notifier.Notify(insufficientStockNotification(stockErr.Available))
	case errors.Is(err, ErrUnauthenticated):
		s.reset()
		s.notifier.Notify(Notification{Kind: KindError, Title: "Sign in required", Message: "Please sign in to continue"})
	case errors.Is(err, ErrNotFound):
		s.notifier.Notify(Notification{Kind: KindError, Title: "Not found", Message: "This item is no longer available"})
	case errors.As(err, &requestErr):
		s.notifier.Notify(Notification{Kind: KindError, Title: "Error", Message: requestErr.Message})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		s.notifier.Notify(Notification{Kind: KindError, Title: "Error", Message: retryMessage + ". Please try again"})
	}
	fields := []zap.Field{}
	if productID != "" {
		fields = append(fields, zap.String("product_id", productID))
	}
	s.logError(operation, reasonOf(err), err, fields...)
	return err
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "request_failed"
	}
}

func (s *Session) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	if reason == "transient" || reason == "request_failed" {
		s.logger.Warn("cart client error", attrs...)
		return
	}
	s.logger.Info("cart client error", attrs...)
}
