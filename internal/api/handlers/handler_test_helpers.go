package handlers

import (
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
)

// MockAckRepository implements storage.AckRepository for testing
type MockAckRepository struct {
	StoreFunc       func(record *domain.AckRecord) error
	GetByGUIDFunc   func(guid string) (*domain.AckRecord, error)
	ListByQueueFunc func(queueURI string, filter storage.AckFilter) ([]*domain.AckRecord, error)
	CountFunc       func() int64
}

func (m *MockAckRepository) Store(record *domain.AckRecord) error {
	if m.StoreFunc != nil {
		return m.StoreFunc(record)
	}
	return nil
}

func (m *MockAckRepository) BulkStore(records []*domain.AckRecord) error {
	for _, r := range records {
		if err := m.Store(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockAckRepository) GetByGUID(guid string) (*domain.AckRecord, error) {
	if m.GetByGUIDFunc != nil {
		return m.GetByGUIDFunc(guid)
	}
	return nil, domain.ErrNotFound
}

func (m *MockAckRepository) ListByQueue(queueURI string, filter storage.AckFilter) ([]*domain.AckRecord, error) {
	if m.ListByQueueFunc != nil {
		return m.ListByQueueFunc(queueURI, filter)
	}
	return nil, nil
}

func (m *MockAckRepository) Count() int64 {
	if m.CountFunc != nil {
		return m.CountFunc()
	}
	return 0
}

func setupGinTest() (*gin.Engine, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	w := httptest.NewRecorder()
	return router, w
}
