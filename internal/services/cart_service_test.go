package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCartRepository is a testify mock of repositories.CartRepository used for failure injection.
type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) ListByUser(ctx context.Context, userID string) ([]models.CartLine, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CartLine), args.Error(1)
}

func (m *MockCartRepository) Get(ctx context.Context, userID, productID string) (*models.CartLine, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CartLine), args.Error(1)
}

func (m *MockCartRepository) Insert(ctx context.Context, line *models.CartLine) error {
	return m.Called(ctx, line).Error(0)
}

func (m *MockCartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	return m.Called(ctx, userID, productID, quantity).Error(0)
}

func (m *MockCartRepository) IncrementQuantity(ctx context.Context, userID, productID string, delta int) error {
	return m.Called(ctx, userID, productID, delta).Error(0)
}

func (m *MockCartRepository) Delete(ctx context.Context, userID, productID string) error {
	return m.Called(ctx, userID, productID).Error(0)
}

func (m *MockCartRepository) DeleteAll(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// gatedCartRepository holds the first gated ListByUser call after it has read the store.
type gatedCartRepository struct {
	*repositories.MockCartRepository
	gate    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (r *gatedCartRepository) ListByUser(ctx context.Context, userID string) ([]models.CartLine, error) {
	if r.gate.CompareAndSwap(true, false) {
		lines, err := r.MockCartRepository.ListByUser(ctx, userID)
		close(r.entered)
		<-r.release
		return lines, err
	}
	return r.MockCartRepository.ListByUser(ctx, userID)
}

type cartFixture struct {
	products *repositories.MockProductRepository
	lines    *repositories.MockCartRepository
	carts    *services.CartService
}

func newCartFixture() *cartFixture {
	f := &cartFixture{
		products: repositories.NewMockProductRepository(),
		lines:    repositories.NewMockCartRepository(),
	}
	f.carts = services.NewCartService(f.lines, f.products)
	return f
}

func seedProduct(t *testing.T, repo repositories.ProductRepository, title, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		Title:    title,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
	require.NoError(t, repo.Create(context.Background(), &p))
	return p
}

func setActive(t *testing.T, repo repositories.ProductRepository, p models.Product, active bool) {
	t.Helper()
	p.IsActive = active
	require.NoError(t, repo.Update(context.Background(), &p))
}

func TestCartService_AddItemIncrementsExistingLine(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Lamp", "10.00", 20)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 2)
	require.NoError(t, err)
	view, err := f.carts.AddItem(ctx, "u1", a.ID, 3)
	require.NoError(t, err)

	require.Len(t, view.Entries, 1)
	assert.Equal(t, 5, view.Entries[0].Line.Quantity)
	assert.Equal(t, "50.00", view.Total.StringFixed(2))

	lines, err := f.lines.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, lines, 1, "adding the same product twice must not create a second line")
}

func TestCartService_Totals(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "249.00", 10)
	b := seedProduct(t, f.products, "Lamp", "45.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 2)
	require.NoError(t, err)
	view, err := f.carts.AddItem(ctx, "u1", b.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, "543.00", view.Total.StringFixed(2))
	assert.Equal(t, 3, view.ItemCount)
	assert.Equal(t, view, f.carts.View("u1"))
}

func TestCartService_InactiveProductExcludedFromTotal(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)
	b := seedProduct(t, f.products, "Table", "15.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 2)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", b.ID, 3)
	require.NoError(t, err)

	setActive(t, f.products, a, false)
	view, err := f.carts.Refresh(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, "45.00", view.Total.StringFixed(2))
	assert.Equal(t, 5, view.ItemCount)
	entry, ok := view.Find(a.ID)
	require.True(t, ok)
	assert.False(t, entry.Available)
}

func TestCartService_DeletedProductDroppedOnRefresh(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)
	b := seedProduct(t, f.products, "Table", "15.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", b.ID, 1)
	require.NoError(t, err)
	require.NoError(t, f.products.Delete(ctx, a.ID))

	view, err := f.carts.Refresh(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, b.ID, view.Entries[0].Product.ID)
	assert.Equal(t, 1, view.ItemCount)
}

func TestCartService_AddItemRejectsBadInput(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)

	_, err := f.carts.AddItem(ctx, "", a.ID, 1)
	assert.ErrorIs(t, err, services.ErrUnauthenticated)

	_, err = f.carts.AddItem(ctx, "u1", a.ID, 0)
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = f.carts.AddItem(ctx, "u1", "missing", 1)
	assert.ErrorIs(t, err, services.ErrProductNotFound)

	setActive(t, f.products, a, false)
	_, err = f.carts.AddItem(ctx, "u1", a.ID, 1)
	assert.ErrorIs(t, err, services.ErrValidation)

	lines, _ := f.lines.ListByUser(ctx, "u1")
	assert.Empty(t, lines)
}

func TestCartService_UpdateQuantity(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)
	b := seedProduct(t, f.products, "Table", "15.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", b.ID, 1)
	require.NoError(t, err)

	view, err := f.carts.UpdateQuantity(ctx, "u1", a.ID, 4)
	require.NoError(t, err)
	entry, _ := view.Find(a.ID)
	assert.Equal(t, 4, entry.Line.Quantity, "update replaces rather than adds")

	view, err = f.carts.UpdateQuantity(ctx, "u1", a.ID, 0)
	require.NoError(t, err)
	_, ok := view.Find(a.ID)
	assert.False(t, ok, "zero quantity removes the line")

	view, err = f.carts.UpdateQuantity(ctx, "u1", b.ID, -2)
	require.NoError(t, err)
	assert.True(t, view.Empty())

	_, err = f.carts.UpdateQuantity(ctx, "u1", a.ID, 3)
	assert.ErrorIs(t, err, services.ErrCartLineNotFound)
}

func TestCartService_RemoveAndClearAreIdempotent(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)
	b := seedProduct(t, f.products, "Table", "15.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u1", b.ID, 2)
	require.NoError(t, err)

	first, err := f.carts.RemoveItem(ctx, "u1", a.ID)
	require.NoError(t, err)
	second, err := f.carts.RemoveItem(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Total, second.Total)

	view, err := f.carts.ClearCart(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, view.Empty())
	view, err = f.carts.ClearCart(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, view.Empty())
	assert.True(t, view.Total.IsZero())
}

func TestCartService_UsersAreIsolated(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.ClearCart(ctx, "u2")
	require.NoError(t, err)

	view, err := f.carts.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.ItemCount)
	assert.True(t, f.carts.View("u2").Empty())
}

func TestCartService_RefreshWithoutUser(t *testing.T) {
	f := newCartFixture()

	view, err := f.carts.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, view.Empty())
	assert.True(t, view.Total.IsZero())
}

func TestCartService_MutationsRequireUser(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()

	_, err := f.carts.UpdateQuantity(ctx, "", "p", 1)
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	_, err = f.carts.RemoveItem(ctx, "", "p")
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
	_, err = f.carts.ClearCart(ctx, "")
	assert.ErrorIs(t, err, services.ErrUnauthenticated)
}

func TestCartService_AddItemRetriesDuplicateInsertAsIncrement(t *testing.T) {
	products := repositories.NewMockProductRepository()
	a := seedProduct(t, products, "Chair", "30.00", 10)
	lines := new(MockCartRepository)
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	// A concurrent add inserted the line between our increment and insert.
	lines.On("IncrementQuantity", ctx, "u1", a.ID, 2).Return(repositories.ErrCartLineNotFound).Once()
	lines.On("Insert", ctx, mock.AnythingOfType("*models.CartLine")).Return(repositories.ErrDuplicateCartLine).Once()
	lines.On("IncrementQuantity", ctx, "u1", a.ID, 2).Return(nil).Once()
	lines.On("ListByUser", ctx, "u1").Return([]models.CartLine{{UserID: "u1", ProductID: a.ID, Quantity: 3}}, nil).Once()

	view, err := carts.AddItem(ctx, "u1", a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, view.ItemCount)
	lines.AssertExpectations(t)
	lines.AssertNumberOfCalls(t, "Insert", 1)
}

func TestCartService_AddItemFailsAfterOneRetry(t *testing.T) {
	products := repositories.NewMockProductRepository()
	a := seedProduct(t, products, "Chair", "30.00", 10)
	lines := new(MockCartRepository)
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	lines.On("IncrementQuantity", ctx, "u1", a.ID, 1).Return(repositories.ErrCartLineNotFound)
	lines.On("Insert", ctx, mock.AnythingOfType("*models.CartLine")).Return(repositories.ErrDuplicateCartLine)

	_, err := carts.AddItem(ctx, "u1", a.ID, 1)
	assert.ErrorIs(t, err, services.ErrCartOperationFailed)
	lines.AssertNumberOfCalls(t, "IncrementQuantity", 2)
	lines.AssertNumberOfCalls(t, "Insert", 2)
	lines.AssertNotCalled(t, "ListByUser", mock.Anything, mock.Anything)
}

func TestCartService_AddItemDoesNotRetryAmbiguousFailure(t *testing.T) {
	products := repositories.NewMockProductRepository()
	a := seedProduct(t, products, "Chair", "30.00", 10)
	lines := new(MockCartRepository)
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	// The write may have landed before the connection dropped; repeating it could double the quantity.
	lines.On("IncrementQuantity", ctx, "u1", a.ID, 2).Return(errors.New("connection reset")).Once()

	_, err := carts.AddItem(ctx, "u1", a.ID, 2)
	assert.ErrorIs(t, err, services.ErrCartOperationFailed)
	assert.Contains(t, err.Error(), "connection reset")
	lines.AssertNumberOfCalls(t, "IncrementQuantity", 1)
	lines.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCartService_AddItemDoesNotRetryFailedInsert(t *testing.T) {
	products := repositories.NewMockProductRepository()
	a := seedProduct(t, products, "Chair", "30.00", 10)
	lines := new(MockCartRepository)
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	lines.On("IncrementQuantity", ctx, "u1", a.ID, 1).Return(repositories.ErrCartLineNotFound).Once()
	lines.On("Insert", ctx, mock.AnythingOfType("*models.CartLine")).Return(errors.New("statement timeout")).Once()

	_, err := carts.AddItem(ctx, "u1", a.ID, 1)
	assert.ErrorIs(t, err, services.ErrCartOperationFailed)
	lines.AssertNumberOfCalls(t, "Insert", 1)
	lines.AssertNumberOfCalls(t, "IncrementQuantity", 1)
}

func TestCartService_FailedRefreshKeepsLastView(t *testing.T) {
	products := repositories.NewMockProductRepository()
	a := seedProduct(t, products, "Chair", "30.00", 10)
	lines := new(MockCartRepository)
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	lines.On("ListByUser", ctx, "u1").Return([]models.CartLine{{UserID: "u1", ProductID: a.ID, Quantity: 2}}, nil).Once()
	good, err := carts.Refresh(ctx, "u1")
	require.NoError(t, err)

	lines.On("ListByUser", ctx, "u1").Return(nil, errors.New("timeout")).Once()
	view, err := carts.Refresh(ctx, "u1")
	assert.ErrorIs(t, err, services.ErrCartOperationFailed)
	assert.Equal(t, good, view)
	assert.Equal(t, good, carts.View("u1"))
}

func TestCartService_StaleRefreshDoesNotOverwriteNewerView(t *testing.T) {
	products := repositories.NewMockProductRepository()
	a := seedProduct(t, products, "Chair", "30.00", 10)
	lines := &gatedCartRepository{
		MockCartRepository: repositories.NewMockCartRepository(),
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "u1", a.ID, 1)
	require.NoError(t, err)

	lines.gate.Store(true)
	var stale models.CartView
	done := make(chan struct{})
	go func() {
		defer close(done)
		stale, _ = carts.Refresh(ctx, "u1")
	}()
	<-lines.entered

	fresh, err := carts.UpdateQuantity(ctx, "u1", a.ID, 2)
	require.NoError(t, err)
	close(lines.release)
	<-done

	assert.Equal(t, 2, fresh.ItemCount)
	assert.Equal(t, 2, stale.ItemCount, "the slower, earlier refresh returns the newer published view")
	assert.Equal(t, 2, carts.View("u1").ItemCount)
}

func TestCartService_ConcurrentAddsKeepOneLine(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 100)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.carts.AddItem(ctx, "u1", a.ID, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	lines, err := f.lines.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 10, lines[0].Quantity, "every concurrent add is counted exactly once")
	assert.Equal(t, 10, f.carts.View("u1").ItemCount)
}

func TestCartService_EmptiedCartIsReleased(t *testing.T) {
	f := newCartFixture()
	ctx := context.Background()
	a := seedProduct(t, f.products, "Chair", "30.00", 10)

	_, err := f.carts.AddItem(ctx, "u1", a.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, "u2", a.ID, 1)
	require.NoError(t, err)
	_, held := f.carts.CurrentView("u1")
	assert.True(t, held)
	assert.Equal(t, 2, f.carts.Tracked())

	_, err = f.carts.ClearCart(ctx, "u1")
	require.NoError(t, err)
	_, held = f.carts.CurrentView("u1")
	assert.False(t, held)
	assert.Equal(t, 1, f.carts.Tracked())

	_, err = f.carts.RemoveItem(ctx, "u2", a.ID)
	require.NoError(t, err)
	assert.Zero(t, f.carts.Tracked())

	// Users who only ever looked at an empty cart leave nothing behind.
	for _, user := range []string{"u3", "u4", "u5"} {
		_, err = f.carts.Refresh(ctx, user)
		require.NoError(t, err)
	}
	assert.Zero(t, f.carts.Tracked())

	view, err := f.carts.AddItem(ctx, "u1", a.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, view.ItemCount, "a released cart is rebuilt from the store")
	assert.Equal(t, 1, f.carts.Tracked())
}

func TestCartService_FailedRefreshOfUntrackedUserIsReleased(t *testing.T) {
	products := repositories.NewMockProductRepository()
	lines := new(MockCartRepository)
	carts := services.NewCartService(lines, products)
	ctx := context.Background()

	lines.On("ListByUser", ctx, "u1").Return(nil, errors.New("timeout")).Once()
	view, err := carts.Refresh(ctx, "u1")
	assert.ErrorIs(t, err, services.ErrCartOperationFailed)
	assert.True(t, view.Empty())
	assert.Zero(t, carts.Tracked())
}
