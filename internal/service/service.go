package service

import (
	"errors"
	"log"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/position"
	"hospital_queue/internal/statemachine"
	"hospital_queue/internal/store"
)

var (
	// ErrQueueNotFound — очередь не найдена ни по id, ни по коду записи.
	ErrQueueNotFound = errors.New("очередь не найдена")
	// ErrPatientNotFound — пациент не найден.
	ErrPatientNotFound = errors.New("пациент не найден")
	// ErrConflict — конкурентное обновление не удалось разрешить за отведённое число попыток.
	ErrConflict = errors.New("конфликт конкурентного обновления")
	// ErrInvalidArgument — некорректный аргумент операции (например, позиция < 1).
	ErrInvalidArgument = position.ErrInvalidPosition
)

const (
	// Сколько следующих WAITING-пациентов уведомляется при начале обслуживания.
	upcomingCount = 2
	// Предел повторов сохранения при проигранной CAS-гонке.
	maxSaveRetries = 3
)

// Dispatcher — интерфейс рассылки событий; реализуется notify.Dispatcher.
type Dispatcher interface {
	DispatchStatusChanged(ev statemachine.StatusChanged, queueName string)
	BroadcastQueueUpdate(queueID uint)
}

// QueueService — координатор очереди: регистрация пациентов, смена статусов,
// вызов следующего. Композиция машины состояний, аллокатора позиций и
// диспетчера уведомлений под пер-очередной блокировкой.
type QueueService struct {
	repo       store.Repository
	allocator  *position.Allocator
	dispatcher Dispatcher
	locks      *queueLocks

	// Now подменяется в тестах.
	Now func() time.Time
}

func NewQueueService(repo store.Repository, dispatcher Dispatcher) *QueueService {
	return &QueueService{
		repo:       repo,
		allocator:  position.NewAllocator(repo),
		dispatcher: dispatcher,
		locks:      newQueueLocks(),
		Now:        time.Now,
	}
}

// RegisterPatientInput — данные регистрации. Очередь указывается либо явным id,
// либо кодом записи (QR); id имеет приоритет.
type RegisterPatientInput struct {
	QueueID  uint
	JoinCode string
	Name     string
	Phone    string
	Email    string
}

// RegisterPatient создаёт пациента со статусом WAITING и следующей свободной
// позицией. Персональное уведомление не отправляется (прежнего состояния нет),
// зрителям очереди уходит широковещательное обновление.
func (s *QueueService) RegisterPatient(in RegisterPatientInput) (*models.Patient, error) {
	queue, err := s.resolveQueue(in.QueueID, in.JoinCode)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(queue.ID)
	defer unlock()

	pos, err := s.allocator.NextPosition(queue.ID)
	if err != nil {
		return nil, err
	}

	patient := &models.Patient{
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		QueueID:  queue.ID,
		Status:   models.StatusWaiting,
		Position: pos,
		JoinedAt: s.Now(),
	}
	if err := s.repo.Save(patient); err != nil {
		return nil, err
	}

	s.dispatcher.BroadcastQueueUpdate(queue.ID)
	return patient, nil
}

// UpdateStatus применяет переход пациента в запрошенный статус. При переходе в
// SERVING любой другой обслуживаемый пациент очереди сначала понижается до
// WAITING (каждое понижение — отдельное событие), после чего уведомляются
// следующие пациенты. Переход в SERVED не вызывает следующего автоматически.
func (s *QueueService) UpdateStatus(patientID uint, requested models.PatientStatus) (*models.Patient, error) {
	patient, err := s.repo.FindPatient(patientID)
	if err != nil {
		return nil, mapNotFound(err, ErrPatientNotFound)
	}
	queue, err := s.repo.FindQueue(patient.QueueID)
	if err != nil {
		return nil, mapNotFound(err, ErrQueueNotFound)
	}

	unlock := s.locks.Lock(queue.ID)
	defer unlock()

	// Свежее чтение под блокировкой.
	patient, err = s.repo.FindPatient(patientID)
	if err != nil {
		return nil, mapNotFound(err, ErrPatientNotFound)
	}

	// Проверяем переход до каких-либо мутаций: недопустимый запрос не должен
	// оставить ни понижений, ни уведомлений.
	if !requested.Valid() || !statemachine.CanTransition(patient.Status, requested) {
		_, err := statemachine.Apply(patient, requested, s.Now())
		return nil, err
	}

	var demoted map[uint]bool
	if requested == models.StatusServing {
		demoted, err = s.demoteServing(queue, patient.ID)
		if err != nil {
			return nil, err
		}
	}

	ev, err := s.saveTransition(patient, requested)
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchStatusChanged(ev, queue.Name)

	if requested == models.StatusServing {
		s.notifyUpcoming(queue, demoted)
	}

	s.dispatcher.BroadcastQueueUpdate(queue.ID)
	return patient, nil
}

// CallNext вызывает следующего WAITING-пациента. Если кто-то уже обслуживается,
// операция ничего не делает и возвращает nil: текущее обслуживание не прерывается.
func (s *QueueService) CallNext(queueID uint) (*models.Patient, error) {
	queue, err := s.repo.FindQueue(queueID)
	if err != nil {
		return nil, mapNotFound(err, ErrQueueNotFound)
	}

	unlock := s.locks.Lock(queue.ID)
	defer unlock()

	serving, err := s.repo.ListByQueueAndStatus(queue.ID, models.StatusServing)
	if err != nil {
		return nil, err
	}
	if len(serving) > 0 {
		return nil, nil
	}

	next, err := s.allocator.NextWaiting(queue.ID, 1)
	if err != nil {
		return nil, err
	}
	if len(next) == 0 {
		return nil, nil
	}

	patient := &next[0]
	ev, err := s.saveTransition(patient, models.StatusServing)
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchStatusChanged(ev, queue.Name)

	s.notifyUpcoming(queue, nil)
	s.dispatcher.BroadcastQueueUpdate(queue.ID)
	return patient, nil
}

// ReassignPosition — административное переназначение позиции без перенумерации
// соседей и без смены статуса. Пациенту уходит уведомление с неизменным статусом,
// чтобы клиент обновил отображаемую позицию.
func (s *QueueService) ReassignPosition(patientID uint, newPosition int) (*models.Patient, error) {
	patient, err := s.repo.FindPatient(patientID)
	if err != nil {
		return nil, mapNotFound(err, ErrPatientNotFound)
	}
	queue, err := s.repo.FindQueue(patient.QueueID)
	if err != nil {
		return nil, mapNotFound(err, ErrQueueNotFound)
	}

	unlock := s.locks.Lock(queue.ID)
	defer unlock()

	for attempt := 0; ; attempt++ {
		patient, err = s.repo.FindPatient(patientID)
		if err != nil {
			return nil, mapNotFound(err, ErrPatientNotFound)
		}
		if err := s.allocator.Reassign(patient, newPosition); err != nil {
			return nil, err
		}
		err = s.repo.Save(patient)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		if attempt+1 >= maxSaveRetries {
			return nil, ErrConflict
		}
	}

	s.dispatcher.DispatchStatusChanged(statemachine.StatusChanged{
		PatientID: patient.ID,
		QueueID:   patient.QueueID,
		OldStatus: patient.Status,
		NewStatus: patient.Status,
		Position:  patient.Position,
		Timestamp: s.Now(),
	}, queue.Name)
	s.dispatcher.BroadcastQueueUpdate(queue.ID)
	return patient, nil
}

// GetPatient возвращает пациента по id.
func (s *QueueService) GetPatient(patientID uint) (*models.Patient, error) {
	patient, err := s.repo.FindPatient(patientID)
	if err != nil {
		return nil, mapNotFound(err, ErrPatientNotFound)
	}
	return patient, nil
}

func (s *QueueService) resolveQueue(queueID uint, joinCode string) (*models.Queue, error) {
	if queueID != 0 {
		queue, err := s.repo.FindQueue(queueID)
		if err == nil {
			return queue, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if joinCode != "" {
		queue, err := s.repo.FindQueueByJoinCode(joinCode)
		if err == nil {
			return queue, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrQueueNotFound
}

// demoteServing понижает всех прочих обслуживаемых пациентов очереди до WAITING,
// сохраняя инвариант "не более одного SERVING" в каждый наблюдаемый момент.
// Возвращает id понижённых: их не нужно тут же уведомлять как "следующих".
func (s *QueueService) demoteServing(queue *models.Queue, excludeID uint) (map[uint]bool, error) {
	serving, err := s.repo.ListByQueueAndStatus(queue.ID, models.StatusServing)
	if err != nil {
		return nil, err
	}
	demoted := make(map[uint]bool)
	for i := range serving {
		other := &serving[i]
		if other.ID == excludeID {
			continue
		}
		ev, err := s.saveTransition(other, models.StatusWaiting)
		if err != nil {
			return nil, err
		}
		s.dispatcher.DispatchStatusChanged(ev, queue.Name)
		demoted[other.ID] = true
	}
	return demoted, nil
}

// notifyUpcoming переводит следующих WAITING-пациентов в NOTIFIED, пропуская
// только что понижённых. Основной переход уже сохранён, поэтому сбои здесь
// логируются, но операцию не проваливают.
func (s *QueueService) notifyUpcoming(queue *models.Queue, skip map[uint]bool) {
	waiting, err := s.repo.ListByQueueAndStatus(queue.ID, models.StatusWaiting)
	if err != nil {
		log.Printf("Ошибка выборки следующих пациентов очереди %d: %v", queue.ID, err)
		return
	}
	position.SortPatients(waiting)

	notified := 0
	for i := range waiting {
		if notified == upcomingCount {
			break
		}
		patient := &waiting[i]
		if skip[patient.ID] {
			continue
		}
		ev, err := s.saveTransition(patient, models.StatusNotified)
		if err != nil {
			log.Printf("Ошибка уведомления пациента %d: %v", patient.ID, err)
			continue
		}
		s.dispatcher.DispatchStatusChanged(ev, queue.Name)
		notified++
	}
}

// saveTransition применяет переход и сохраняет пациента с ограниченным числом
// повторов при проигранной CAS-гонке. Перед каждым повтором состояние
// перечитывается и переход применяется заново.
func (s *QueueService) saveTransition(patient *models.Patient, target models.PatientStatus) (statemachine.StatusChanged, error) {
	for attempt := 0; ; attempt++ {
		ev, err := statemachine.Apply(patient, target, s.Now())
		if err != nil {
			return statemachine.StatusChanged{}, err
		}
		err = s.repo.Save(patient)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return statemachine.StatusChanged{}, err
		}
		if attempt+1 >= maxSaveRetries {
			return statemachine.StatusChanged{}, ErrConflict
		}
		fresh, ferr := s.repo.FindPatient(patient.ID)
		if ferr != nil {
			return statemachine.StatusChanged{}, mapNotFound(ferr, ErrPatientNotFound)
		}
		*patient = *fresh
	}
}

func mapNotFound(err, typed error) error {
	if errors.Is(err, store.ErrNotFound) {
		return typed
	}
	return err
}
