package position

import (
	"errors"
	"sort"

	"hospital_queue/internal/models"
	"hospital_queue/internal/store"
)

// ErrInvalidPosition возвращается при попытке назначить позицию меньше 1.
var ErrInvalidPosition = errors.New("позиция должна быть не меньше 1")

// Allocator выдаёт и переназначает позиции в очереди. Позиции монотонно растут
// и никогда не переиспользуются: MAX(position) считается по всем записям очереди,
// включая терминальные.
type Allocator struct {
	repo store.Repository
}

func NewAllocator(repo store.Repository) *Allocator {
	return &Allocator{repo: repo}
}

// NextPosition возвращает следующую свободную позицию: 1 + MAX(position),
// либо 1 для пустой очереди. Вызывается под блокировкой очереди.
func (a *Allocator) NextPosition(queueID uint) (int, error) {
	maxPosition, err := a.repo.MaxPosition(queueID)
	if err != nil {
		return 0, err
	}
	return maxPosition + 1, nil
}

// Reassign выставляет пациенту произвольную позицию без перенумерации соседей.
// Совпадающие позиции допустимы: полный порядок восстанавливается по joinedAt и id.
func (a *Allocator) Reassign(p *models.Patient, newPosition int) error {
	if newPosition < 1 {
		return ErrInvalidPosition
	}
	p.Position = newPosition
	return nil
}

// Less задаёт полный детерминированный порядок "кто следующий":
// позиция по возрастанию, затем joinedAt, затем id.
func Less(a, b models.Patient) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

// SortPatients сортирует срез пациентов в порядке вызова.
func SortPatients(patients []models.Patient) {
	sort.SliceStable(patients, func(i, j int) bool {
		return Less(patients[i], patients[j])
	})
}

// NextWaiting выбирает следующих count пациентов со статусом WAITING в порядке
// вызова. Повторный вызов без промежуточных записей выбирает тех же пациентов.
func (a *Allocator) NextWaiting(queueID uint, count int) ([]models.Patient, error) {
	waiting, err := a.repo.ListByQueueAndStatus(queueID, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	SortPatients(waiting)
	if len(waiting) > count {
		waiting = waiting[:count]
	}
	return waiting, nil
}
