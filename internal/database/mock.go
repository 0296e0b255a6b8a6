package database

import (
	"github.com/stretchr/testify/mock"
)

type MockTranscriptRepository struct {
	mock.Mock
}

func (m *MockTranscriptRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockTranscriptRepository) SaveTranscript(t Transcript) error {
	args := m.Called(t)
	return args.Error(0)
}
func (m *MockTranscriptRepository) GetTranscript(roomId string) (Transcript, error) {
	args := m.Called(roomId)
	return args.Get(0).(Transcript), args.Error(1)
}
func (m *MockTranscriptRepository) ListTranscriptsByCustomer(customerId string, limit int) ([]Transcript, error) {
	args := m.Called(customerId, limit)
	return args.Get(0).([]Transcript), args.Error(1)
}
