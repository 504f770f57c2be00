package notify

import (
	"context"
	"log"
	"strconv"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/statemachine"
	"hospital_queue/internal/ws"
)

// LiveChannel — best-effort доставка подключённым клиентам (websocket-хаб).
type LiveChannel interface {
	Publish(topic string, payload interface{}) error
}

// Notification — содержимое push-уведомления.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Report — итог рассылки по нескольким устройствам. Частичный провал не является
// ошибкой: каждое устройство обрабатывается независимо.
type Report struct {
	Succeeded int
	Failed    int
}

// PushChannel — доставка push-уведомлений на устройства пациента.
type PushChannel interface {
	Send(ctx context.Context, token string, n Notification) error
	SendMany(ctx context.Context, tokens []string, n Notification) Report
}

// DeviceSource отдаёт токены устройств пациента. Узкий интерфейс, чтобы
// диспетчер не зависел от хранилища очереди.
type DeviceSource interface {
	DeviceTokens(patientID uint) ([]string, error)
}

// LiveEvent — полезная нагрузка live-сообщения о смене статуса.
type LiveEvent struct {
	Event     string               `json:"event"`
	PatientID uint                 `json:"patient_id"`
	QueueID   uint                 `json:"queue_id"`
	QueueName string               `json:"queue_name,omitempty"`
	OldStatus models.PatientStatus `json:"old_status,omitempty"`
	Status    models.PatientStatus `json:"status,omitempty"`
	Position  int                  `json:"position"`
	Timestamp time.Time            `json:"timestamp"`
}

const pushTimeout = 5 * time.Second

// Dispatcher раздаёт события смены статуса по live- и push-каналам.
// Каналы независимы: сбой одного не влияет на другой и никогда не
// прерывает операцию, породившую событие.
type Dispatcher struct {
	live    LiveChannel
	push    PushChannel
	devices DeviceSource
}

func NewDispatcher(live LiveChannel, push PushChannel, devices DeviceSource) *Dispatcher {
	return &Dispatcher{live: live, push: push, devices: devices}
}

// DispatchStatusChanged отправляет событие в канал пациента, в канал очереди
// и push-уведомление на все устройства пациента. Push уходит асинхронно:
// операция-триггер не ждёт его завершения.
func (d *Dispatcher) DispatchStatusChanged(ev statemachine.StatusChanged, queueName string) {
	payload := LiveEvent{
		Event:     "status-changed",
		PatientID: ev.PatientID,
		QueueID:   ev.QueueID,
		QueueName: queueName,
		OldStatus: ev.OldStatus,
		Status:    ev.NewStatus,
		Position:  ev.Position,
		Timestamp: ev.Timestamp,
	}

	if err := d.live.Publish(ws.PatientTopic(ev.PatientID), payload); err != nil {
		log.Printf("Ошибка live-доставки пациенту %d: %v", ev.PatientID, err)
	}
	if err := d.live.Publish(ws.QueueTopic(ev.QueueID), payload); err != nil {
		log.Printf("Ошибка live-доставки в очередь %d: %v", ev.QueueID, err)
	}

	go d.pushToDevices(ev, queueName)
}

// BroadcastQueueUpdate рассылает сигнал "очередь изменилась" всем зрителям очереди,
// чтобы они перечитали её состояние целиком.
func (d *Dispatcher) BroadcastQueueUpdate(queueID uint) {
	payload := LiveEvent{
		Event:     "queue-updated",
		QueueID:   queueID,
		Timestamp: time.Now(),
	}
	if err := d.live.Publish(ws.QueueTopic(queueID), payload); err != nil {
		log.Printf("Ошибка рассылки обновления очереди %d: %v", queueID, err)
	}
}

func (d *Dispatcher) pushToDevices(ev statemachine.StatusChanged, queueName string) {
	tokens, err := d.devices.DeviceTokens(ev.PatientID)
	if err != nil {
		log.Printf("Ошибка получения токенов пациента %d: %v", ev.PatientID, err)
		return
	}
	if len(tokens) == 0 {
		// Нет зарегистрированных устройств — это не ошибка.
		return
	}

	title, body := Message(ev.NewStatus, ev.Position, queueName)
	n := Notification{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"patientId":     strconv.FormatUint(uint64(ev.PatientID), 10),
			"status":        string(ev.NewStatus),
			"queuePosition": strconv.Itoa(ev.Position),
			"queueId":       strconv.FormatUint(uint64(ev.QueueID), 10),
			"queueName":     queueName,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	report := d.push.SendMany(ctx, tokens, n)
	if report.Failed > 0 {
		log.Printf("Push пациенту %d: доставлено %d, сбоев %d", ev.PatientID, report.Succeeded, report.Failed)
	}
}

// Message возвращает заголовок и текст уведомления для статуса. Полная функция
// над замкнутым перечислением статусов: появление нового статуса обязано
// провалить тест на полноту таблицы.
func Message(status models.PatientStatus, position int, queueName string) (title, body string) {
	switch status {
	case models.StatusWaiting:
		return "Queue Position Updated",
			"You are now in position " + strconv.Itoa(position) + " in the " + queueName + " queue."
	case models.StatusNotified:
		return "Get Ready! Your Turn is Coming Up",
			"You will be called soon! Please prepare to be served."
	case models.StatusServing:
		return "It's Your Turn Now!",
			"It is your turn now! Please proceed to the service desk."
	case models.StatusServed:
		return "Thank You for Your Visit",
			"Thank you for your visit!"
	case models.StatusCancelled:
		return "Queue Status Update",
			"Your place in the " + queueName + " queue has been cancelled."
	}
	return "Queue Status Update", "Your status has been updated."
}
