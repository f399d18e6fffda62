package order

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/voucher"
)

// Cart is the subset of the cart store used at checkout.
type Cart interface {
	Snapshot() []pricing.LineItem
	Clear()
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Cart     Cart
	Address  *Address
	Voucher  *voucher.Voucher
	Discount int64
	UserID   string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides order id generation.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) { s.newID = newID }
}

// WithCancelPolicy sets how late an order may be cancelled.
func WithCancelPolicy(p CancelPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithTracerProvider sets the tracer provider for order spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("storefront/order") }
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("storefront/order") }
}

// Service encapsulates order placement and status transitions.
type Service struct {
	orders Repository
	policy CancelPolicy
	now    func() time.Time
	newID  func() (string, error)

	tracer      trace.Tracer
	meter       metric.Meter
	placed      metric.Int64Counter
	transitions metric.Int64Counter

	// locks serializes transitions per order id. Entries are dropped once
	// no goroutine holds or waits for them.
	locksMu sync.Mutex
	locks   map[string]*orderLock
}

type orderLock struct {
	sync.Mutex
	refs int
}

// NewService creates an order Service.
func NewService(orders Repository, opts ...Option) (*Service, error) {
	s := &Service{
		orders: orders,
		policy: DefaultCancelPolicy(),
		now:    time.Now,
		newID:  newOrderID,
		tracer: tracenoop.NewTracerProvider().Tracer("storefront/order"),
		meter:  metricnoop.NewMeterProvider().Meter("storefront/order"),
		locks:  make(map[string]*orderLock),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.placed, err = s.meter.Int64Counter("storefront.order.placed",
		metric.WithDescription("Orders placed"),
	); err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	if s.transitions, err = s.meter.Int64Counter("storefront.order.transitions",
		metric.WithDescription("Applied order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	return s, nil
}

func newOrderID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// PlaceOrder validates the checkout input, snapshots the cart into a new
// pending order and persists it. The cart is cleared only after the order
// has been written.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() { endSpan(span, rerr) }()

	if !req.Address.Complete() {
		return nil, ErrMissingAddress
	}
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	if req.Cart == nil {
		return nil, ErrEmptyCart
	}
	items := req.Cart.Snapshot()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	subtotal, err := pricing.ComputeSubtotal(items)
	if err != nil {
		return nil, err
	}

	discount := req.Discount
	var v *voucher.Voucher
	if req.Voucher == nil {
		discount = 0
	} else {
		cp := *req.Voucher
		v = &cp
	}
	discount = min(max(discount, 0), subtotal)

	id, err := s.newID()
	if err != nil {
		return nil, errors.Wrap(err, "generate order id")
	}

	now := s.now()
	o := Order{
		ID:             id,
		UserID:         req.UserID,
		Items:          items,
		Address:        *req.Address,
		Voucher:        v,
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TotalPrice:     pricing.ComputeTotal(subtotal, discount),
		Status:         StatusPendingConfirmation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.orders.Upsert(ctx, o); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}
	req.Cart.Clear()

	s.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int64("total", o.TotalPrice),
		zap.Int("items", len(o.Items)),
	)
	return &o, nil
}

// Cancel moves the order to cancelled.
func (s *Service) Cancel(ctx context.Context, id string, actor Actor) (*Order, error) {
	return s.Transition(ctx, id, actor, StatusCancelled)
}

// Advance moves the order one step along the seller path:
// pending -> processing -> shipping -> delivered.
func (s *Service) Advance(ctx context.Context, id string, actor Actor) (*Order, error) {
	if actor.Role != RoleSeller {
		return nil, errors.Wrapf(ErrUnauthorized, "role %q cannot advance orders", actor.Role)
	}
	return s.transition(ctx, id, actor, func(from Status) (Status, bool) {
		return Next(from)
	})
}

// Transition moves the order to target if the edge exists, the actor's role
// may take it and the cancel policy allows it.
func (s *Service) Transition(ctx context.Context, id string, actor Actor, target Status) (*Order, error) {
	return s.transition(ctx, id, actor, func(Status) (Status, bool) {
		return target, true
	})
}

func (s *Service) transition(
	ctx context.Context,
	id string,
	actor Actor,
	target func(from Status) (Status, bool),
) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer func() { endSpan(span, rerr) }()

	if !actor.Role.Valid() {
		return nil, errors.Wrapf(ErrUnauthorized, "unknown role %q", actor.Role)
	}

	unlock := s.lock(id)
	defer unlock()

	o, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID != "" && !o.VisibleTo(actor) {
		return nil, errors.Wrapf(ErrUnauthorized, "order %s", id)
	}

	from := o.Status
	to, ok := target(from)
	if !ok {
		return nil, &TransitionError{OrderID: id, From: from, To: from}
	}
	edge, permitted := CanTransition(from, to, actor.Role)
	if !edge {
		return nil, &TransitionError{OrderID: id, From: from, To: to}
	}
	if !permitted {
		return nil, errors.Wrapf(ErrUnauthorized, "role %q cannot move order from %s to %s", actor.Role, from, to)
	}
	if to == StatusCancelled && !s.policy.allows(from) {
		return nil, &TransitionError{OrderID: id, From: from, To: to}
	}

	now := s.now()
	o.Status = to
	o.UpdatedAt = now
	o.History = append(o.History, StatusChange{From: from, To: to, Role: actor.Role, At: now})
	if err := s.orders.Upsert(ctx, *o); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.String("role", string(actor.Role)),
	))
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("role", string(actor.Role)),
	)
	return o, nil
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.find(ctx, id)
}

// ListForUser returns the orders visible to the user in the given role,
// newest first. Buyers see orders they placed; sellers see orders that
// contain at least one of their products.
func (s *Service) ListForUser(ctx context.Context, userID string, role Role) ([]Order, error) {
	if !role.Valid() {
		return nil, errors.Wrapf(ErrUnauthorized, "unknown role %q", role)
	}
	all, err := s.orders.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	actor := Actor{UserID: userID, Role: role}
	out := make([]Order, 0, len(all))
	for _, o := range all {
		if o.VisibleTo(actor) {
			out = append(out, o)
		}
	}
	slices.SortStableFunc(out, func(a, b Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Service) find(ctx context.Context, id string) (*Order, error) {
	all, err := s.orders.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, errors.Wrapf(ErrOrderNotFound, "order %s", id)
}

func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &orderLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		s.locksMu.Lock()
		defer s.locksMu.Unlock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, id)
		}
	}
}

// heldLocks reports how many order ids currently have a lock entry.
func (s *Service) heldLocks() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
