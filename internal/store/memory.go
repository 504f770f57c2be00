package store

import (
	"sort"
	"strings"
	"sync"

	"hospital_queue/internal/models"
)

// MemoryRepository — потокобезопасная реализация Repository в памяти.
// Используется в тестах и в окружениях без базы данных; семантика CAS по
// версии совпадает с DBRepository.
type MemoryRepository struct {
	mu       sync.RWMutex
	queues   map[uint]models.Queue
	patients map[uint]models.Patient
	devices  map[uint][]string
	nextID   uint
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		queues:   make(map[uint]models.Queue),
		patients: make(map[uint]models.Patient),
		devices:  make(map[uint][]string),
		nextID:   1,
	}
}

// AddQueue кладёт очередь в хранилище, выдавая id при необходимости.
func (m *MemoryRepository) AddQueue(q models.Queue) models.Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.ID == 0 {
		q.ID = m.nextID
		m.nextID++
	}
	m.queues[q.ID] = q
	return q
}

// AddDevice регистрирует токен устройства пациента.
func (m *MemoryRepository) AddDevice(patientID uint, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[patientID] = append(m.devices[patientID], token)
}

func (m *MemoryRepository) FindQueue(id uint) (*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *MemoryRepository) FindQueueByJoinCode(code string) (*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		if strings.EqualFold(q.JoinCode, code) {
			queue := q
			return &queue, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) FindPatient(id uint) (*models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) Save(p *models.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == 0 {
		p.ID = m.nextID
		m.nextID++
		m.patients[p.ID] = *p
		return nil
	}

	current, ok := m.patients[p.ID]
	if !ok {
		m.patients[p.ID] = *p
		return nil
	}
	if current.Version != p.Version {
		return ErrConflict
	}
	p.Version++
	m.patients[p.ID] = *p
	return nil
}

func (m *MemoryRepository) ListByQueue(queueID uint) ([]models.Patient, error) {
	return m.list(queueID, nil)
}

func (m *MemoryRepository) ListByQueueAndStatus(queueID uint, statuses ...models.PatientStatus) ([]models.Patient, error) {
	return m.list(queueID, statuses)
}

func (m *MemoryRepository) list(queueID uint, statuses []models.PatientStatus) ([]models.Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Patient
	for _, p := range m.patients {
		if p.QueueID != queueID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				if p.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (m *MemoryRepository) MaxPosition(queueID uint) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	maxPosition := 0
	for _, p := range m.patients {
		if p.QueueID == queueID && p.Position > maxPosition {
			maxPosition = p.Position
		}
	}
	return maxPosition, nil
}

func (m *MemoryRepository) DeviceTokens(patientID uint) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tokens := make([]string, len(m.devices[patientID]))
	copy(tokens, m.devices[patientID])
	return tokens, nil
}
