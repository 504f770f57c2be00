package statemachine

import (
	"errors"
	"fmt"
	"time"

	"hospital_queue/internal/models"
)

// ErrInvalidTransition возвращается, если запрошенный статус недостижим из текущего.
var ErrInvalidTransition = errors.New("недопустимый переход статуса")

// StatusChanged — событие успешного перехода. Единственный внешний эффект
// машины состояний помимо изменённого пациента; передаётся диспетчеру уведомлений.
type StatusChanged struct {
	PatientID uint
	QueueID   uint
	OldStatus models.PatientStatus
	NewStatus models.PatientStatus
	Position  int
	Timestamp time.Time
}

// Таблица переходов: текущий статус -> множество допустимых целевых статусов.
// Целевой статус задаётся вызывающей стороной (административное переопределение
// разрешено: например, WAITING -> SERVED напрямую). SERVED и CANCELLED терминальны.
var allowed = map[models.PatientStatus]map[models.PatientStatus]bool{
	models.StatusWaiting: {
		models.StatusWaiting:   true, // no-op
		models.StatusNotified:  true,
		models.StatusServing:   true,
		models.StatusServed:    true, // прямое переопределение, см. тесты
		models.StatusCancelled: true,
	},
	models.StatusNotified: {
		models.StatusWaiting:   true, // откат уведомления
		models.StatusNotified:  true, // повторное уведомление
		models.StatusServing:   true,
		models.StatusServed:    true,
		models.StatusCancelled: true,
	},
	models.StatusServing: {
		models.StatusWaiting:   true, // понижение при конфликте "кто обслуживается"
		models.StatusServed:    true,
		models.StatusCancelled: true,
	},
	models.StatusServed:    {},
	models.StatusCancelled: {},
}

// CanTransition сообщает, допустим ли переход без применения эффектов.
func CanTransition(from, to models.PatientStatus) bool {
	return allowed[from][to]
}

// Apply проверяет переход и применяет эффекты к пациенту: выставляет статус и
// временные метки. Инвариант "не более одного SERVING на очередь" обеспечивается
// координатором до вызова Apply.
//
// При отмене позиция снимается только в событии (Position = 0): в хранилище
// историческое значение сохраняется, чтобы MAX(position) не убывал и позиции
// никогда не переиспользовались. Наружу позиция неактивного пациента не отдаётся.
func Apply(p *models.Patient, target models.PatientStatus, now time.Time) (StatusChanged, error) {
	if !target.Valid() {
		return StatusChanged{}, fmt.Errorf("%w: неизвестный статус %q", ErrInvalidTransition, target)
	}
	if !CanTransition(p.Status, target) {
		return StatusChanged{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, target)
	}

	old := p.Status
	p.Status = target

	switch target {
	case models.StatusNotified:
		t := now
		p.NotifiedAt = &t
	case models.StatusServed:
		t := now
		p.ServedAt = &t
	}

	eventPosition := p.Position
	if !target.Active() {
		eventPosition = 0
	}

	return StatusChanged{
		PatientID: p.ID,
		QueueID:   p.QueueID,
		OldStatus: old,
		NewStatus: target,
		Position:  eventPosition,
		Timestamp: now,
	}, nil
}
