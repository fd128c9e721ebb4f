package fulfillment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/fulfillment"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// MockVendorGateway
// ---------------------------------------------------------------------------

type MockVendorGateway struct {
	mock.Mock
}

func (m *MockVendorGateway) FetchOpenOrders(ctx context.Context) []integration.VendorOrder {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]integration.VendorOrder)
}

func (m *MockVendorGateway) PushOrderStatus(ctx context.Context, orderCode string, status integration.VendorOrderStatus) bool {
	return m.Called(ctx, orderCode, status).Bool(0)
}

func (m *MockVendorGateway) CancelOrder(ctx context.Context, orderCode string) bool {
	return m.Called(ctx, orderCode).Bool(0)
}

func (m *MockVendorGateway) CreateConsignment(ctx context.Context, req *integration.ConsignmentRequest) (*integration.ConsignmentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ConsignmentResult), args.Error(1)
}

func (m *MockVendorGateway) FindConsignment(ctx context.Context, orderCode, trackingID string) (*integration.ConsignmentResult, error) {
	args := m.Called(ctx, orderCode, trackingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ConsignmentResult), args.Error(1)
}

func (m *MockVendorGateway) CancelConsignment(ctx context.Context, consignmentCode string) bool {
	return m.Called(ctx, consignmentCode).Bool(0)
}

func (m *MockVendorGateway) ReportDelivery(ctx context.Context, consignmentCode string) bool {
	return m.Called(ctx, consignmentCode).Bool(0)
}

func (m *MockVendorGateway) CreateReturn(ctx context.Context, req *integration.ReturnRequest) (string, bool) {
	args := m.Called(ctx, req)
	return args.String(0), args.Bool(1)
}

func (m *MockVendorGateway) UpdateReturnStatus(ctx context.Context, returnCode string, status string) bool {
	return m.Called(ctx, returnCode, status).Bool(0)
}

var _ integration.VendorGateway = (*MockVendorGateway)(nil)

// ---------------------------------------------------------------------------
// MockCarrierTracker
// ---------------------------------------------------------------------------

type MockCarrierTracker struct {
	mock.Mock
}

func (m *MockCarrierTracker) GetStatus(ctx context.Context, trackingID string) (string, bool) {
	args := m.Called(ctx, trackingID)
	return args.String(0), args.Bool(1)
}

// ---------------------------------------------------------------------------
// MockOrderRepository, for storage failure paths
// ---------------------------------------------------------------------------

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByCode(ctx context.Context, code string) (*fulfillment.Order, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByStatus(ctx context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) Search(ctx context.Context, term string, limit int) ([]*fulfillment.Order, error) {
	args := m.Called(ctx, term, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) SaveLine(ctx context.Context, line *fulfillment.OrderLine) error {
	return m.Called(ctx, line).Error(0)
}

func (m *MockOrderRepository) UpdateStatusByCode(ctx context.Context, code string, status fulfillment.OrderStatus) (bool, error) {
	args := m.Called(ctx, code, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatusByID(ctx context.Context, id uuid.UUID, status fulfillment.OrderStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

var _ fulfillment.OrderRepository = (*MockOrderRepository)(nil)

// ---------------------------------------------------------------------------
// In-memory repositories for scenario tests
// ---------------------------------------------------------------------------

type memoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*fulfillment.Order
}

func newMemoryOrderRepository(orders ...*fulfillment.Order) *memoryOrderRepository {
	r := &memoryOrderRepository{orders: make(map[uuid.UUID]*fulfillment.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memoryOrderRepository) FindByID(_ context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		return o, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryOrderRepository) FindByCode(_ context.Context, code string) (*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Code == code {
			return o, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryOrderRepository) FindByStatus(_ context.Context, status fulfillment.OrderStatus) ([]*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Order
	for _, o := range r.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryOrderRepository) Search(_ context.Context, term string, limit int) ([]*fulfillment.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Order
	for _, o := range r.orders {
		if strings.Contains(o.Code, term) && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryOrderRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	_, err := r.FindByCode(ctx, code)
	return err == nil, nil
}

func (r *memoryOrderRepository) Save(_ context.Context, order *fulfillment.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepository) SaveLine(_ context.Context, _ *fulfillment.OrderLine) error {
	return nil
}

func (r *memoryOrderRepository) UpdateStatusByCode(ctx context.Context, code string, status fulfillment.OrderStatus) (bool, error) {
	o, err := r.FindByCode(ctx, code)
	if err != nil {
		return false, nil
	}
	o.Status = status
	return true, nil
}

func (r *memoryOrderRepository) UpdateStatusByID(ctx context.Context, id uuid.UUID, status fulfillment.OrderStatus) (bool, error) {
	o, err := r.FindByID(ctx, id)
	if err != nil {
		return false, nil
	}
	o.Status = status
	return true, nil
}

type memoryConsignmentRepository struct {
	mu           sync.Mutex
	consignments map[uuid.UUID]*fulfillment.Consignment
}

func newMemoryConsignmentRepository(consignments ...*fulfillment.Consignment) *memoryConsignmentRepository {
	r := &memoryConsignmentRepository{consignments: make(map[uuid.UUID]*fulfillment.Consignment)}
	for _, c := range consignments {
		r.consignments[c.ID] = c
	}
	return r
}

func (r *memoryConsignmentRepository) FindByID(_ context.Context, id uuid.UUID) (*fulfillment.Consignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.consignments[id]; ok {
		return c, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryConsignmentRepository) FindByTrackingID(_ context.Context, trackingID string) (*fulfillment.Consignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.consignments {
		if c.TrackingID == trackingID {
			return c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryConsignmentRepository) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]*fulfillment.Consignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Consignment
	for _, c := range r.consignments {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryConsignmentRepository) FindByStatus(_ context.Context, statuses ...fulfillment.ConsignmentStatus) ([]*fulfillment.Consignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Consignment
	for _, c := range r.consignments {
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryConsignmentRepository) FindPendingVendorSync(_ context.Context) ([]*fulfillment.Consignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Consignment
	for _, c := range r.consignments {
		if c.NeedsVendorSync() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memoryConsignmentRepository) ExistsByTrackingID(ctx context.Context, trackingID string) (bool, error) {
	_, err := r.FindByTrackingID(ctx, trackingID)
	return err == nil, nil
}

func (r *memoryConsignmentRepository) Save(_ context.Context, c *fulfillment.Consignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consignments[c.ID] = c
	return nil
}

func (r *memoryConsignmentRepository) UpdateStatusByID(ctx context.Context, id uuid.UUID, status fulfillment.ConsignmentStatus, code string) (bool, error) {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return false, nil
	}
	c.Status = status
	c.CarrierStatusCode = code
	return true, nil
}

func (r *memoryConsignmentRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consignments)
}

// memoryReturnRepository stores copies so a status change is only visible
// once the service persisted it
type memoryReturnRepository struct {
	mu      sync.Mutex
	returns map[uuid.UUID]*fulfillment.Return
	orders  *memoryOrderRepository
	// receiveErr fails the next MarkReceived call without booking anything
	receiveErr error
	// beforeReceive runs once at the start of the next MarkReceived call
	beforeReceive func()
}

func newMemoryReturnRepository(orders *memoryOrderRepository) *memoryReturnRepository {
	return &memoryReturnRepository{returns: make(map[uuid.UUID]*fulfillment.Return), orders: orders}
}

func copyReturn(ret *fulfillment.Return) *fulfillment.Return {
	cp := *ret
	return &cp
}

func (r *memoryReturnRepository) FindByID(_ context.Context, id uuid.UUID) (*fulfillment.Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ret, ok := r.returns[id]; ok {
		return copyReturn(ret), nil
	}
	return nil, shared.ErrNotFound
}

func (r *memoryReturnRepository) FindByCode(_ context.Context, code string) (*fulfillment.Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ret := range r.returns {
		if ret.Code == code {
			return copyReturn(ret), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryReturnRepository) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]*fulfillment.Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Return
	for _, ret := range r.returns {
		if ret.OrderID == orderID {
			out = append(out, copyReturn(ret))
		}
	}
	return out, nil
}

func (r *memoryReturnRepository) FindByStatus(_ context.Context, status fulfillment.ReturnStatus) ([]*fulfillment.Return, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fulfillment.Return
	for _, ret := range r.returns {
		if ret.Status == status {
			out = append(out, copyReturn(ret))
		}
	}
	return out, nil
}

func (r *memoryReturnRepository) Save(_ context.Context, ret *fulfillment.Return) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.returns[ret.ID] = copyReturn(ret)
	return nil
}

func (r *memoryReturnRepository) UpdateStatusByID(_ context.Context, id uuid.UUID, status fulfillment.ReturnStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret, ok := r.returns[id]
	if !ok {
		return false, nil
	}
	ret.Status = status
	return true, nil
}

func (r *memoryReturnRepository) MarkReceived(_ context.Context, ret *fulfillment.Return) (bool, error) {
	if hook := r.beforeReceive; hook != nil {
		r.beforeReceive = nil
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.receiveErr; err != nil {
		r.receiveErr = nil
		return false, err
	}
	stored, ok := r.returns[ret.ID]
	if !ok || !stored.Status.IsOpen() {
		return false, nil
	}
	order, err := r.orders.FindByID(context.Background(), stored.OrderID)
	if err != nil {
		return false, nil
	}
	for _, e := range stored.Entries {
		if line := order.LineByID(e.OrderLineID); line != nil {
			_, _ = line.Cancel(e.Quantity)
		}
	}
	stored.Status = fulfillment.ReturnStatusReceived
	return true, nil
}

// ---------------------------------------------------------------------------
// memoryIdempotencyStore
// ---------------------------------------------------------------------------

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: make(map[string]bool)}
}

func (s *memoryIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *memoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memoryIdempotencyStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

// newTestOrder builds an IN_PROGRESS order MK-1001 with one line per quantity.
// Line n has product code "40063813339n" and number n.
func newTestOrder(t *testing.T, quantities ...int) *fulfillment.Order {
	t.Helper()
	lines := make([]*fulfillment.OrderLine, 0, len(quantities))
	for i, q := range quantities {
		line, err := fulfillment.NewOrderLine(i+1, productCode(i+1), "Item", q, decimal.RequireFromString("9.99"))
		require.NoError(t, err)
		lines = append(lines, line)
	}
	order, err := fulfillment.NewOrder("MK-1001", "buyer@example.com", lines)
	require.NoError(t, err)
	require.NoError(t, order.TransitionTo(fulfillment.OrderStatusInProgress))
	return order
}

func productCode(n int) string {
	return "40063813339" + string(rune('0'+n))
}

// newTestConsignment ships the full quantity of the given lines
func newTestConsignment(t *testing.T, order *fulfillment.Order, trackingID string, lines ...*fulfillment.OrderLine) *fulfillment.Consignment {
	t.Helper()
	c, err := fulfillment.NewConsignment(order, trackingID, "DHL", time.Now())
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, c.AddEntry(l, l.Quantity))
	}
	return c
}
