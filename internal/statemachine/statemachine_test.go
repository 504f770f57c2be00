package statemachine

import (
	"testing"
	"time"

	"hospital_queue/internal/models"

	"github.com/stretchr/testify/assert"
)

func waitingPatient() *models.Patient {
	return &models.Patient{
		QueueID:  1,
		Status:   models.StatusWaiting,
		Position: 3,
		JoinedAt: time.Now(),
	}
}

func TestTerminalStatusesRejectAnyTransition(t *testing.T) {
	now := time.Now()
	for _, terminal := range []models.PatientStatus{models.StatusServed, models.StatusCancelled} {
		for _, target := range models.AllStatuses {
			p := waitingPatient()
			p.Status = terminal
			_, err := Apply(p, target, now)
			assert.ErrorIs(t, err, ErrInvalidTransition,
				"переход %s -> %s должен быть запрещён", terminal, target)
		}
	}
}

func TestDirectWaitingToServed(t *testing.T) {
	// Административное переопределение: SERVED напрямую из WAITING, минуя SERVING.
	p := waitingPatient()
	now := time.Now()

	ev, err := Apply(p, models.StatusServed, now)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusServed, p.Status)
	if assert.NotNil(t, p.ServedAt) {
		assert.Equal(t, now, *p.ServedAt)
	}
	assert.Equal(t, models.StatusWaiting, ev.OldStatus)
	assert.Equal(t, models.StatusServed, ev.NewStatus)
}

func TestNotifiedSetsTimestamp(t *testing.T) {
	p := waitingPatient()
	now := time.Now()

	ev, err := Apply(p, models.StatusNotified, now)
	assert.NoError(t, err)
	if assert.NotNil(t, p.NotifiedAt) {
		assert.Equal(t, now, *p.NotifiedAt)
	}
	assert.Nil(t, p.ServedAt)
	assert.Equal(t, p.Position, ev.Position)
}

func TestCancelClearsPositionInEventOnly(t *testing.T) {
	p := waitingPatient()

	ev, err := Apply(p, models.StatusCancelled, time.Now())
	assert.NoError(t, err)
	// В событии позиция снята, в хранимой записи историческое значение остаётся,
	// чтобы позиции никогда не переиспользовались.
	assert.Equal(t, 0, ev.Position)
	assert.Equal(t, 3, p.Position)
	assert.Equal(t, models.StatusCancelled, p.Status)
}

func TestWaitingToWaitingIsNoOp(t *testing.T) {
	p := waitingPatient()

	ev, err := Apply(p, models.StatusWaiting, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, p.Status)
	assert.Nil(t, p.NotifiedAt)
	assert.Nil(t, p.ServedAt)
	assert.Equal(t, ev.OldStatus, ev.NewStatus)
}

func TestServingDemotionToWaiting(t *testing.T) {
	p := waitingPatient()
	p.Status = models.StatusServing

	ev, err := Apply(p, models.StatusWaiting, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, p.Status)
	assert.Equal(t, models.StatusServing, ev.OldStatus)
	// Позиция при понижении сохраняется.
	assert.Equal(t, 3, p.Position)
}

func TestUnknownStatusRejected(t *testing.T) {
	p := waitingPatient()
	_, err := Apply(p, models.PatientStatus("PAUSED"), time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.StatusWaiting, p.Status)
}

func TestTransitionTableCoversAllStatuses(t *testing.T) {
	// Новый статус обязан попасть в таблицу переходов.
	for _, s := range models.AllStatuses {
		_, ok := allowed[s]
		assert.True(t, ok, "статус %s отсутствует в таблице переходов", s)
	}
}
