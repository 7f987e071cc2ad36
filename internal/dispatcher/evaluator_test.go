package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-notify/internal/models"
	"wisefido-notify/internal/queue"
	"wisefido-notify/internal/repository"
)

func setupEvaluator(t *testing.T, engine *fakeEngine) (*sql.DB, sqlmock.Sqlmock, *fakeScheduler, *RuleEvaluator) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	eventsRepo := repository.NewEventsRepository(db, logger)
	rulesRepo := repository.NewRulesRepository(db, logger)
	usersRepo := repository.NewUsersRepository(db, logger)
	loopGuard := NewLoopGuard(rulesRepo, logger)
	scheduler := &fakeScheduler{}

	evaluator := NewRuleEvaluator(eventsRepo, rulesRepo, usersRepo, loopGuard, engine, scheduler, logger)

	return db, mock, scheduler, evaluator
}

func TestEvaluate_EventMissing_NoOp(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnError(sql.ErrNoRows)

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	assert.Empty(t, engine.requests)
	assert.Empty(t, scheduler.tasks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_RuleMissing_NoOp(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("deleted-rule").
		WillReturnError(sql.ErrNoRows)

	err := evaluator.Evaluate(context.Background(), eventID, "deleted-rule")

	require.NoError(t, err)
	assert.Empty(t, engine.requests)
	assert.Empty(t, scheduler.tasks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_LoopGuard_AbortsBeforeGateway(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()
	policyUUID := uuid.New().String()

	contextJSON := fmt.Sprintf(`{"policy_uuid": "%s"}`, policyUUID)

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, contextJSON, "Policy fired"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(policyUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	// 策略网关未被调用，也没有投递任务
	assert.Empty(t, engine.requests)
	assert.Empty(t, scheduler.tasks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_EmptyPolicySet_NeverFires(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnRows(userRows([2]string{actorID, "alice"}))
	mock.ExpectQuery(`SELECT policy_id`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	require.Len(t, engine.requests, 1)
	// 空策略集默认不通过：评估请求显式携带 empty_result=false
	assert.False(t, engine.requests[0].EmptyResult)
	assert.Empty(t, scheduler.tasks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_PolicyFail_NoFanOut(t *testing.T) {
	engine := &fakeEngine{passing: false}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()
	policyID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnRows(userRows([2]string{actorID, "alice"}))
	mock.ExpectQuery(`SELECT policy_id`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}).AddRow(policyID))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	require.Len(t, engine.requests, 1)
	assert.Empty(t, scheduler.tasks)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_FanOut_OneJobPerTransportUserPair(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()
	policyID := uuid.New().String()
	groupID := uuid.New().String()
	transportID := uuid.New().String()
	user1 := uuid.New().String()
	user2 := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "group", &groupID))
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnRows(userRows([2]string{actorID, "alice"}))
	mock.ExpectQuery(`SELECT policy_id`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}).AddRow(policyID))
	mock.ExpectQuery(`SELECT`).
		WithArgs(groupID).
		WillReturnRows(userRows([2]string{user1, "bob"}, [2]string{user2, "carol"}))
	mock.ExpectQuery(`SELECT`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{
			"transport_id", "name", "kind", "config", "send_once",
		}).AddRow(transportID, "ops-webhook", "webhook", `{}`, false))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	require.Len(t, scheduler.tasks, 2)

	first := scheduler.tasks[0].payload.(queue.TransportSendPayload)
	second := scheduler.tasks[1].payload.(queue.TransportSendPayload)
	assert.Equal(t, queue.TaskTransportSend, scheduler.tasks[0].name)
	assert.Equal(t, transportID, first.TransportID)
	assert.Equal(t, user1, first.UserID)
	assert.Equal(t, user2, second.UserID)
	assert.Equal(t, ruleID, first.RuleID)
	assert.Equal(t, eventID, first.EventID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_SendOnce_CapsFanOut(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()
	policyID := uuid.New().String()
	groupID := uuid.New().String()
	transportID := uuid.New().String()
	user1 := uuid.New().String()
	user2 := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "group", &groupID))
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnRows(userRows([2]string{actorID, "alice"}))
	mock.ExpectQuery(`SELECT policy_id`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}).AddRow(policyID))
	mock.ExpectQuery(`SELECT`).
		WithArgs(groupID).
		WillReturnRows(userRows([2]string{user1, "bob"}, [2]string{user2, "carol"}))
	mock.ExpectQuery(`SELECT`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{
			"transport_id", "name", "kind", "config", "send_once",
		}).AddRow(transportID, "ops-email", "email", `{}`, true))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	// send_once 通道只为第一个目标用户调度一次
	require.Len(t, scheduler.tasks, 1)
	payload := scheduler.tasks[0].payload.(queue.TransportSendPayload)
	assert.Equal(t, user1, payload.UserID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_EngineRequestFlags(t *testing.T) {
	engine := &fakeEngine{passing: false}
	db, mock, _, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()
	policyID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnRows(userRows([2]string{actorID, "alice"}))
	mock.ExpectQuery(`SELECT policy_id`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}).AddRow(policyID))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	require.Len(t, engine.requests, 1)

	req := engine.requests[0]
	// 策略决策必须新鲜计算：any 模式、禁用缓存、空集默认不通过
	assert.Equal(t, models.PolicyModeAny, req.Mode)
	assert.False(t, req.UseCache)
	assert.False(t, req.EmptyResult)
	assert.Equal(t, actorID, req.UserID)
	assert.Equal(t, []string{policyID}, req.PolicyIDs)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_AnonymousFallback(t *testing.T) {
	engine := &fakeEngine{passing: false}
	db, mock, _, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()
	policyID := uuid.New().String()
	anonymousID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	// 操作者已被删除，回退到匿名用户
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT`).
		WithArgs(models.AnonymousUsername).
		WillReturnRows(userRows([2]string{anonymousID, models.AnonymousUsername}))
	mock.ExpectQuery(`SELECT policy_id`).
		WithArgs(ruleID).
		WillReturnRows(sqlmock.NewRows([]string{"policy_id"}).AddRow(policyID))

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	require.Len(t, engine.requests, 1)
	assert.Equal(t, anonymousID, engine.requests[0].UserID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluate_SubjectUnresolvable_Aborts(t *testing.T) {
	engine := &fakeEngine{passing: true}
	db, mock, scheduler, evaluator := setupEvaluator(t, engine)
	defer db.Close()

	eventID := uuid.New().String()
	actorID := uuid.New().String()
	ruleID := uuid.New().String()

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(eventRows(eventID, actorID, `{}`, "User logged in"))
	mock.ExpectQuery(`SELECT`).
		WithArgs("failed-login-alert").
		WillReturnRows(ruleRows(ruleID, "failed-login-alert", "warning", "event_user", nil))
	mock.ExpectQuery(`SELECT`).
		WithArgs(actorID).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT`).
		WithArgs(models.AnonymousUsername).
		WillReturnError(sql.ErrNoRows)

	err := evaluator.Evaluate(context.Background(), eventID, "failed-login-alert")

	require.NoError(t, err)
	assert.Empty(t, engine.requests)
	assert.Empty(t, scheduler.tasks)

	require.NoError(t, mock.ExpectationsWereMet())
}
