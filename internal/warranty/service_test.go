package warranty_test

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"ms-storefront/internal/apperr"
	"ms-storefront/internal/auth"
	"ms-storefront/internal/config"
	"ms-storefront/internal/database/dbtest"
	"ms-storefront/internal/kafka"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/warranty"
	"ms-storefront/internal/warranty/db"
)

var (
	fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	admin    = auth.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	tech     = auth.Principal{UserID: "tech-1", Role: models.RoleTech}
	customer = auth.Principal{UserID: "user-1", Role: models.RoleCustomer}
)

type recordingPublisher struct {
	events []kafka.Event
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, ev kafka.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func setupService(t *testing.T) (*warranty.Service, *bun.DB, *recordingPublisher) {
	bunDB := dbtest.New(t)
	pub := &recordingPublisher{}
	svc := warranty.NewService(&db.DB{Bun: bunDB}, pub, config.TopicConfig{}, config.WarrantyConfig{SweepBatchSize: 100}, logger.Discard())
	svc.Now = func() time.Time { return fixedNow }

	_, err := bunDB.NewInsert().Model(&models.Product{
		ID: "p1", SKU: "SKU-1", Name: "Laptop", Price: decimal.NewFromInt(15000000),
		StockQuantity: 5, IsActive: true, WarrantyMonths: 12, ExchangeDays: 7,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}).Exec(context.Background())
	require.NoError(t, err)
	return svc, bunDB, pub
}

// addUnit inserts an ACTIVE unit that started daysAgo days before fixedNow.
func addUnit(t *testing.T, bunDB *bun.DB, code, userID string, daysAgo, months, exchangeDays int) *models.WarrantyUnit {
	t.Helper()
	start := fixedNow.AddDate(0, 0, -daysAgo)
	u := &models.WarrantyUnit{
		ID:          "unit-" + code,
		Code:        code,
		OrderID:     "order-1",
		OrderItemID: "item-1",
		ProductID:   "p1",
		UserID:      userID,
		StartDate:   start,
		EndDate:     start.AddDate(0, months, 0),
		Status:      models.WarrantyActive,
		CreatedAt:   start,
		UpdatedAt:   start,
	}
	if exchangeDays > 0 {
		eu := start.AddDate(0, 0, exchangeDays)
		u.ExchangeUntil = &eu
	}
	_, err := bunDB.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

func loadUnit(t *testing.T, bunDB *bun.DB, id string) models.WarrantyUnit {
	t.Helper()
	var u models.WarrantyUnit
	require.NoError(t, bunDB.NewSelect().Model(&u).Where("id = ?", id).Scan(context.Background()))
	return u
}

func notificationsFor(t *testing.T, bunDB *bun.DB, userID string) []models.Notification {
	t.Helper()
	var ns []models.Notification
	require.NoError(t, bunDB.NewSelect().Model(&ns).Where("user_id = ?", userID).Scan(context.Background()))
	return ns
}

func eventsFor(t *testing.T, bunDB *bun.DB, action string) []models.EventLog {
	t.Helper()
	var es []models.EventLog
	require.NoError(t, bunDB.NewSelect().Model(&es).Where("action = ?", action).Scan(context.Background()))
	return es
}

func TestTerminate(t *testing.T) {
	svc, bunDB, pub := setupService(t)
	ctx := context.Background()
	u := addUnit(t, bunDB, "BH-250601-AAAAAA", "user-1", 3, 12, 7)

	got, err := svc.Terminate(ctx, admin, u.ID, "phát hiện can thiệp phần cứng")
	require.NoError(t, err)
	assert.Equal(t, models.WarrantyVoided, got.Status)

	stored := loadUnit(t, bunDB, u.ID)
	assert.Equal(t, models.WarrantyVoided, stored.Status)
	assert.False(t, stored.EndDate.After(fixedNow))
	require.NotNil(t, stored.ExchangeUntil)
	assert.False(t, stored.ExchangeUntil.After(fixedNow))
	assert.Equal(t, "phát hiện can thiệp phần cứng", stored.VoidReason)

	ns := notificationsFor(t, bunDB, "user-1")
	require.Len(t, ns, 1)
	assert.Equal(t, warranty.TitleTerminated, ns[0].Title)
	assert.Contains(t, ns[0].Message, "phát hiện can thiệp phần cứng")

	logs := eventsFor(t, bunDB, "WARRANTY_TERMINATED")
	require.Len(t, logs, 1)
	assert.Equal(t, "admin-1", logs[0].ActorID)
	assert.Equal(t, u.ID, logs[0].EntityID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "warranty.terminated", pub.events[0].Type)
}

func TestTerminateRules(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	ctx := context.Background()
	u := addUnit(t, bunDB, "BH-250601-BBBBBB", "user-1", 3, 12, 7)

	_, err := svc.Terminate(ctx, customer, u.ID, "reason")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.Terminate(ctx, auth.Principal{}, u.ID, "reason")
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	_, err = svc.Terminate(ctx, tech, u.ID, "   ")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Terminate(ctx, tech, "missing", "reason")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Terminate(ctx, tech, u.ID, "first")
	require.NoError(t, err)
	_, err = svc.Terminate(ctx, tech, u.ID, "second")
	assert.Equal(t, "WARRANTY_NOT_ACTIVE", apperr.CodeOf(err))
	assert.Len(t, notificationsFor(t, bunDB, "user-1"), 1)
}

func TestTerminateGuestUnitSkipsNotification(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	u := addUnit(t, bunDB, "BH-250601-CCCCCC", "", 3, 12, 0)

	_, err := svc.Terminate(context.Background(), admin, u.ID, "guest unit")
	require.NoError(t, err)

	n, err := bunDB.NewSelect().Model((*models.Notification)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, eventsFor(t, bunDB, "WARRANTY_TERMINATED"), 1)
}

func TestVoidExchange(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	ctx := context.Background()
	inWindow := addUnit(t, bunDB, "BH-250601-DDDDDD", "user-1", 2, 12, 7)
	pastWindow := addUnit(t, bunDB, "BH-250601-EEEEEE", "user-1", 30, 12, 7)

	got, err := svc.VoidExchange(ctx, tech, inWindow.ID, "khách báo lỗi do rơi vỡ")
	require.NoError(t, err)
	assert.Equal(t, models.WarrantyActive, got.Status)

	stored := loadUnit(t, bunDB, inWindow.ID)
	assert.Equal(t, models.WarrantyActive, stored.Status)
	assert.Equal(t, models.PhaseRepair, warranty.PhaseAt(&stored, fixedNow.Add(time.Second)))

	ns := notificationsFor(t, bunDB, "user-1")
	require.Len(t, ns, 1)
	assert.Equal(t, warranty.TitleExchangeVoided, ns[0].Title)

	_, err = svc.VoidExchange(ctx, tech, pastWindow.ID, "late")
	assert.Equal(t, "NOT_IN_EXCHANGE_PERIOD", apperr.CodeOf(err))
}

func TestSweepExpired(t *testing.T) {
	svc, bunDB, pub := setupService(t)
	ctx := context.Background()
	addUnit(t, bunDB, "BH-240101-AAAAAA", "user-1", 400, 12, 7)
	addUnit(t, bunDB, "BH-240101-BBBBBB", "user-2", 380, 12, 0)
	live := addUnit(t, bunDB, "BH-250601-FFFFFF", "user-1", 10, 12, 7)

	res, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, warranty.SweepResult{Selected: 2, Expired: 2}, res)

	assert.Equal(t, models.WarrantyActive, loadUnit(t, bunDB, live.ID).Status)
	assert.Len(t, notificationsFor(t, bunDB, "user-1"), 1)
	assert.Len(t, notificationsFor(t, bunDB, "user-2"), 1)
	assert.Len(t, eventsFor(t, bunDB, "WARRANTY_EXPIRED"), 2)
	assert.Len(t, pub.events, 2)

	// A second run finds nothing and notifies nobody again.
	res, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, warranty.SweepResult{}, res)
	assert.Len(t, notificationsFor(t, bunDB, "user-1"), 1)
	assert.Len(t, eventsFor(t, bunDB, "WARRANTY_EXPIRED"), 2)
}

// execSQL installs triggers that make one unit misbehave inside the sweep.
func execSQL(t *testing.T, bunDB *bun.DB, query string) {
	t.Helper()
	_, err := bunDB.ExecContext(context.Background(), query)
	require.NoError(t, err)
}

func TestSweepContinuesPastFailedUnit(t *testing.T) {
	svc, bunDB, pub := setupService(t)
	ctx := context.Background()
	a := addUnit(t, bunDB, "BH-240101-CCCCCC", "user-1", 400, 12, 0)
	broken := addUnit(t, bunDB, "BH-240101-DDDDDD", "user-broken", 390, 12, 0)
	c := addUnit(t, bunDB, "BH-240101-EEEEEE", "user-2", 380, 12, 0)

	execSQL(t, bunDB, `CREATE TRIGGER fail_notify BEFORE INSERT ON notifications
		WHEN NEW.user_id = 'user-broken'
		BEGIN SELECT RAISE(ABORT, 'inbox unavailable'); END`)

	res, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, warranty.SweepResult{Selected: 3, Expired: 2, Failed: 1}, res)

	assert.Equal(t, models.WarrantyExpired, loadUnit(t, bunDB, a.ID).Status)
	assert.Equal(t, models.WarrantyExpired, loadUnit(t, bunDB, c.ID).Status)
	// the failed unit rolled back entirely and stays eligible
	assert.Equal(t, models.WarrantyActive, loadUnit(t, bunDB, broken.ID).Status)
	assert.Len(t, eventsFor(t, bunDB, "WARRANTY_EXPIRED"), 2)
	assert.Len(t, pub.events, 2)

	execSQL(t, bunDB, `DROP TRIGGER fail_notify`)
	res, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, warranty.SweepResult{Selected: 1, Expired: 1}, res)
	assert.Len(t, notificationsFor(t, bunDB, "user-broken"), 1)
}

func TestSweepSkipsUnitChangedAfterSelection(t *testing.T) {
	svc, bunDB, pub := setupService(t)
	ctx := context.Background()
	a := addUnit(t, bunDB, "BH-240101-HHHHHH", "user-1", 400, 12, 0)
	raced := addUnit(t, bunDB, "BH-240101-JJJJJJ", "user-2", 390, 12, 0)

	// The update for the raced unit matches no row, as if another
	// writer changed it between selection and expiry.
	execSQL(t, bunDB, `CREATE TRIGGER lose_race BEFORE UPDATE ON warranty_units
		WHEN OLD.id = '`+raced.ID+`'
		BEGIN SELECT RAISE(IGNORE); END`)

	res, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, warranty.SweepResult{Selected: 2, Expired: 1, Skipped: 1}, res)

	assert.Equal(t, models.WarrantyExpired, loadUnit(t, bunDB, a.ID).Status)
	assert.Empty(t, notificationsFor(t, bunDB, "user-2"))
	assert.Len(t, eventsFor(t, bunDB, "WARRANTY_EXPIRED"), 1)
	assert.Len(t, pub.events, 1)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	svc.BatchSize = 3
	for i := 0; i < 5; i++ {
		addUnit(t, bunDB, fmt.Sprintf("BH-240101-X%05d", i), "user-1", 400, 12, 0)
	}

	res, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Selected)
	assert.Equal(t, 3, res.Expired)

	res, err = svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Expired)
}

func TestCheck(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	ctx := context.Background()
	addUnit(t, bunDB, "BH-250601-GGGGGG", "user-1", 2, 12, 7)

	c, err := svc.Check(ctx, "bh-250601-gggggg")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", c.ProductName)
	assert.Equal(t, models.PhaseExchange, c.Phase)
	assert.Greater(t, c.DaysRemaining, 300)
	assert.Empty(t, c.ServiceTickets)

	_, err = svc.Check(ctx, "BH-000000-NOPE00")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCardQR(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	addUnit(t, bunDB, "BH-250601-QRQRQR", "user-1", 2, 12, 7)

	out, err := svc.CardQR(context.Background(), "BH-250601-QRQRQR", "https://shop.example/warranty")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestServiceTicketRules(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	ctx := context.Background()
	exchange := addUnit(t, bunDB, "BH-250601-HHHHHH", "user-1", 2, 12, 7)
	repair := addUnit(t, bunDB, "BH-250601-JJJJJJ", "user-1", 30, 12, 7)
	expired := addUnit(t, bunDB, "BH-240101-KKKKKK", "user-1", 400, 12, 0)

	issue := "Máy không lên nguồn sau khi sạc"

	_, err := svc.CreateServiceTicket(ctx, auth.Principal{}, warranty.ServiceTicketRequest{Code: repair.Code, IssueDescription: issue})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	_, err = svc.CreateServiceTicket(ctx, customer, warranty.ServiceTicketRequest{Code: exchange.Code, IssueDescription: issue})
	assert.Equal(t, "IN_EXCHANGE_PERIOD", apperr.CodeOf(err))

	_, err = svc.CreateServiceTicket(ctx, customer, warranty.ServiceTicketRequest{Code: expired.Code, IssueDescription: issue})
	assert.Equal(t, "WARRANTY_EXPIRED", apperr.CodeOf(err))

	_, err = svc.CreateServiceTicket(ctx, customer, warranty.ServiceTicketRequest{Code: repair.Code, IssueDescription: "short"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	ticket, err := svc.CreateServiceTicket(ctx, customer, warranty.ServiceTicketRequest{Code: repair.Code, IssueDescription: issue})
	require.NoError(t, err)
	assert.Equal(t, models.ServicePending, ticket.Status)
	assert.Equal(t, repair.ID, ticket.WarrantyUnitID)

	c, err := svc.Check(ctx, repair.Code)
	require.NoError(t, err)
	require.Len(t, c.ServiceTickets, 1)
	assert.Equal(t, ticket.ID, c.ServiceTickets[0].ID)

	_, err = svc.Terminate(ctx, admin, repair.ID, "voided")
	require.NoError(t, err)
	_, err = svc.CreateServiceTicket(ctx, customer, warranty.ServiceTicketRequest{Code: repair.Code, IssueDescription: issue})
	assert.Equal(t, "WARRANTY_NOT_ACTIVE", apperr.CodeOf(err))
}

func TestUpdateServiceTicketStatus(t *testing.T) {
	svc, bunDB, _ := setupService(t)
	ctx := context.Background()
	repair := addUnit(t, bunDB, "BH-250601-LLLLLL", "user-1", 30, 12, 7)

	ticket, err := svc.CreateServiceTicket(ctx, customer, warranty.ServiceTicketRequest{
		Code: repair.Code, IssueDescription: "Màn hình bị sọc ngang",
	})
	require.NoError(t, err)

	_, err = svc.UpdateServiceTicketStatus(ctx, customer, ticket.ID, warranty.ServiceStatusRequest{Status: models.ServiceReceived})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.UpdateServiceTicketStatus(ctx, tech, ticket.ID, warranty.ServiceStatusRequest{Status: models.ServiceCompleted})
	assert.Equal(t, "INVALID_TRANSITION", apperr.CodeOf(err))

	_, err = svc.UpdateServiceTicketStatus(ctx, tech, ticket.ID, warranty.ServiceStatusRequest{Status: "LOST"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	for _, next := range []models.ServiceStatus{models.ServiceReceived, models.ServiceInProgress, models.ServiceCompleted} {
		got, err := svc.UpdateServiceTicketStatus(ctx, tech, ticket.ID, warranty.ServiceStatusRequest{Status: next, AdminNote: "ok"})
		require.NoError(t, err)
		assert.Equal(t, next, got.Status)
	}

	// created + three updates
	assert.Len(t, notificationsFor(t, bunDB, "user-1"), 4)
	assert.Len(t, eventsFor(t, bunDB, "WARRANTY_SERVICE_UPDATED"), 3)
}
