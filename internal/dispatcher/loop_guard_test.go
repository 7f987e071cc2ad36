package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-notify/internal/models"
	"wisefido-notify/internal/repository"
)

func TestLoopGuard_NoPolicyUUID(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := zap.NewNop()
	guard := NewLoopGuard(repository.NewRulesRepository(db, logger), logger)

	event := &models.Event{
		EventID: uuid.New().String(),
		Context: json.RawMessage(`{"source": "web"}`),
	}

	loopRisk, err := guard.Check(context.Background(), event)

	require.NoError(t, err)
	// 不带 policy_uuid 的事件无需查询绑定
	assert.False(t, loopRisk)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoopGuard_PolicyBound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := zap.NewNop()
	guard := NewLoopGuard(repository.NewRulesRepository(db, logger), logger)

	policyUUID := uuid.New().String()
	event := &models.Event{
		EventID: uuid.New().String(),
		Context: json.RawMessage(fmt.Sprintf(`{"policy_uuid": "%s"}`, policyUUID)),
	}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(policyUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	loopRisk, err := guard.Check(context.Background(), event)

	require.NoError(t, err)
	assert.True(t, loopRisk)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoopGuard_PolicyNotBound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := zap.NewNop()
	guard := NewLoopGuard(repository.NewRulesRepository(db, logger), logger)

	policyUUID := uuid.New().String()
	event := &models.Event{
		EventID: uuid.New().String(),
		Context: json.RawMessage(fmt.Sprintf(`{"policy_uuid": "%s"}`, policyUUID)),
	}

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(policyUUID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	loopRisk, err := guard.Check(context.Background(), event)

	require.NoError(t, err)
	assert.False(t, loopRisk)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoopGuard_MalformedContext(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := zap.NewNop()
	guard := NewLoopGuard(repository.NewRulesRepository(db, logger), logger)

	event := &models.Event{
		EventID: uuid.New().String(),
		Context: json.RawMessage(`not-json`),
	}

	_, err := guard.Check(context.Background(), event)

	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
