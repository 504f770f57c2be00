package position

import (
	"testing"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestNextPositionMonotonic(t *testing.T) {
	repo := store.NewMemoryRepository()
	queue := repo.AddQueue(models.Queue{Name: "Терапевт", JoinCode: "abc"})
	a := NewAllocator(repo)

	for want := 1; want <= 5; want++ {
		pos, err := a.NextPosition(queue.ID)
		assert.NoError(t, err)
		assert.Equal(t, want, pos)

		err = repo.Save(&models.Patient{
			Name:     "Пациент",
			QueueID:  queue.ID,
			Status:   models.StatusWaiting,
			Position: pos,
			JoinedAt: time.Now(),
		})
		assert.NoError(t, err)
	}
}

func TestNextPositionNotReusedAfterServed(t *testing.T) {
	repo := store.NewMemoryRepository()
	queue := repo.AddQueue(models.Queue{Name: "Терапевт", JoinCode: "abc"})
	a := NewAllocator(repo)

	served := &models.Patient{QueueID: queue.ID, Status: models.StatusServed, Position: 4, JoinedAt: time.Now()}
	assert.NoError(t, repo.Save(served))

	pos, err := a.NextPosition(queue.ID)
	assert.NoError(t, err)
	assert.Equal(t, 5, pos, "позиции терминальных записей не переиспользуются")
}

func TestReassignValidation(t *testing.T) {
	a := NewAllocator(store.NewMemoryRepository())
	p := &models.Patient{Position: 2}

	assert.ErrorIs(t, a.Reassign(p, 0), ErrInvalidPosition)
	assert.ErrorIs(t, a.Reassign(p, -3), ErrInvalidPosition)
	assert.Equal(t, 2, p.Position)

	assert.NoError(t, a.Reassign(p, 7))
	assert.Equal(t, 7, p.Position)
}

func TestCallOrderTieBreaks(t *testing.T) {
	early := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	patients := []models.Patient{
		{Status: models.StatusWaiting, Position: 2, JoinedAt: early},
		{Status: models.StatusWaiting, Position: 1, JoinedAt: late},
		{Status: models.StatusWaiting, Position: 1, JoinedAt: early},
		{Status: models.StatusWaiting, Position: 1, JoinedAt: early},
	}
	patients[0].ID = 10
	patients[1].ID = 11
	patients[2].ID = 13
	patients[3].ID = 12

	SortPatients(patients)

	// Позиция, затем joinedAt, затем id.
	assert.Equal(t, uint(12), patients[0].ID)
	assert.Equal(t, uint(13), patients[1].ID)
	assert.Equal(t, uint(11), patients[2].ID)
	assert.Equal(t, uint(10), patients[3].ID)
}

func TestNextWaitingDeterministic(t *testing.T) {
	repo := store.NewMemoryRepository()
	queue := repo.AddQueue(models.Queue{Name: "Терапевт", JoinCode: "abc"})
	a := NewAllocator(repo)

	joined := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		assert.NoError(t, repo.Save(&models.Patient{
			QueueID:  queue.ID,
			Status:   models.StatusWaiting,
			Position: i,
			JoinedAt: joined,
		}))
	}

	first, err := a.NextWaiting(queue.ID, 2)
	assert.NoError(t, err)
	second, err := a.NextWaiting(queue.ID, 2)
	assert.NoError(t, err)

	// Повторный вызов без промежуточных записей выбирает тех же пациентов.
	assert.Len(t, first, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
	assert.Equal(t, 1, first[0].Position)
	assert.Equal(t, 2, first[1].Position)
}
