package dispatcher

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-notify/internal/models"
	"wisefido-notify/internal/repository"
	"wisefido-notify/internal/transport"
)

// fakeSender 测试用传输通道
type fakeSender struct {
	sent []*models.Notification
	err  error
}

func (f *fakeSender) Send(ctx context.Context, notification *models.Notification, user *models.User, t *models.NotificationTransport) error {
	f.sent = append(f.sent, notification)
	return f.err
}

func setupDeliveryJob(t *testing.T, sender *fakeSender) (*sql.DB, sqlmock.Sqlmock, *DeliveryJob) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	eventsRepo := repository.NewEventsRepository(db, logger)
	usersRepo := repository.NewUsersRepository(db, logger)
	rulesRepo := repository.NewRulesRepository(db, logger)
	transportsRepo := repository.NewTransportsRepository(db, logger)
	notificationsRepo := repository.NewNotificationsRepository(db, logger)

	registry := transport.NewRegistry()
	registry.Register(models.TransportKindWebhook, sender)

	job := NewDeliveryJob(eventsRepo, usersRepo, rulesRepo, transportsRepo, notificationsRepo, registry, logger)

	return db, mock, job
}

func transportRows(transportID, kind string, sendOnce bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"transport_id", "name", "kind", "config", "send_once",
	}).AddRow(transportID, "ops-channel", kind, `{"url": "https://example.com/hook"}`, sendOnce)
}

func TestDeliver_Success(t *testing.T) {
	sender := &fakeSender{}
	db, mock, job := setupDeliveryJob(t, sender)
	defer db.Close()

	eventID := uuid.New().String()
	userID := uuid.New().String()
	ruleID := uuid.New().String()
	transportID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, userID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnRows(userRows([2]string{userID, "alice"}))
	mock.ExpectQuery(`SELECT`).
		WithArgs(ruleID).
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(transportID).
		WillReturnRows(transportRows(transportID, "webhook", false))
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), "warning", "User logged in", sqlmock.AnyArg(), userID, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := job.Deliver(context.Background(), transportID, eventID, userID, ruleID)

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "warning", sender.sent[0].Severity)
	assert.Equal(t, "User logged in", sender.sent[0].Body)
	assert.Equal(t, userID, sender.sent[0].UserID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliver_EventDeleted_NoOp(t *testing.T) {
	sender := &fakeSender{}
	db, mock, job := setupDeliveryJob(t, sender)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnError(sql.ErrNoRows)

	err := job.Deliver(context.Background(), uuid.New().String(), eventID, uuid.New().String(), uuid.New().String())

	require.NoError(t, err)
	assert.Empty(t, sender.sent)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliver_UserDeleted_NoOp(t *testing.T) {
	sender := &fakeSender{}
	db, mock, job := setupDeliveryJob(t, sender)
	defer db.Close()

	eventID := uuid.New().String()
	userID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, "", `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnError(sql.ErrNoRows)

	err := job.Deliver(context.Background(), uuid.New().String(), eventID, userID, uuid.New().String())

	require.NoError(t, err)
	assert.Empty(t, sender.sent)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliver_TransportFailure_StillRecordsAttempt(t *testing.T) {
	sender := &fakeSender{err: assert.AnError}
	db, mock, job := setupDeliveryJob(t, sender)
	defer db.Close()

	eventID := uuid.New().String()
	userID := uuid.New().String()
	ruleID := uuid.New().String()
	transportID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, userID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnRows(userRows([2]string{userID, "alice"}))
	mock.ExpectQuery(`SELECT`).
		WithArgs(ruleID).
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(transportID).
		WillReturnRows(transportRows(transportID, "webhook", false))
	// 通道层失败不阻止通知记录写入：记录的存在表示做过投递尝试
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs(sqlmock.AnyArg(), "warning", "User logged in", sqlmock.AnyArg(), userID, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := job.Deliver(context.Background(), transportID, eventID, userID, ruleID)

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliver_UnknownTransportKind_NoOp(t *testing.T) {
	sender := &fakeSender{}
	db, mock, job := setupDeliveryJob(t, sender)
	defer db.Close()

	eventID := uuid.New().String()
	userID := uuid.New().String()
	ruleID := uuid.New().String()
	transportID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, userID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs(userID).
		WillReturnRows(userRows([2]string{userID, "alice"}))
	mock.ExpectQuery(`SELECT`).
		WithArgs(ruleID).
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(transportID).
		WillReturnRows(transportRows(transportID, "carrier-pigeon", false))

	err := job.Deliver(context.Background(), transportID, eventID, userID, ruleID)

	require.NoError(t, err)
	assert.Empty(t, sender.sent)

	require.NoError(t, mock.ExpectationsWereMet())
}
