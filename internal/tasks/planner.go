package tasks

import (
	"log"
	"time"

	"hospital_queue/internal/models"
	"hospital_queue/internal/storage"

	"github.com/robfig/cron/v3"
)

// Срок хранения завершённых записей пациентов.
const retention = 30 * 24 * time.Hour

// PurgeFinishedPatients удаляет пациентов в терминальных статусах (SERVED, CANCELLED),
// завершённых дольше срока хранения, вместе с их устройствами. Ядро пациентов не
// удаляет никогда; это административная чистка, живущая снаружи координатора.
func PurgeFinishedPatients() {
	threshold := time.Now().Add(-retention)

	var stale []models.Patient
	if err := storage.DB.
		Where("status IN ? AND updated_at < ?",
			[]models.PatientStatus{models.StatusServed, models.StatusCancelled}, threshold).
		Find(&stale).Error; err != nil {
		log.Println("Ошибка поиска устаревших пациентов:", err)
		return
	}

	if len(stale) == 0 {
		return
	}

	ids := make([]uint, 0, len(stale))
	for _, p := range stale {
		ids = append(ids, p.ID)
	}

	if err := storage.DB.Where("patient_id IN ?", ids).Delete(&models.PatientDevice{}).Error; err != nil {
		log.Println("Ошибка удаления устройств устаревших пациентов:", err)
		return
	}
	if err := storage.DB.Delete(&models.Patient{}, ids).Error; err != nil {
		log.Println("Ошибка удаления устаревших пациентов:", err)
		return
	}
	log.Printf("Удалено устаревших записей пациентов: %d", len(ids))
}

// InitScheduler инициализирует планировщик cron-задач.
func InitScheduler() *cron.Cron {
	c := cron.New(cron.WithSeconds())

	// Чистка завершённых записей каждый день в 03:00.
	_, err := c.AddFunc("0 0 3 * * *", PurgeFinishedPatients)
	if err != nil {
		log.Println("Ошибка запуска cron-задачи PurgeFinishedPatients:", err)
	}

	c.Start()
	log.Println("Cron-планировщик запущен.")
	return c
}
