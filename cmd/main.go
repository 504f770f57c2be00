package main

import (
	"fmt"
	"log"
	"os"

	_ "hospital_queue/docs"
	"hospital_queue/internal/handlers"
	"hospital_queue/internal/models"
	"hospital_queue/internal/notify"
	"hospital_queue/internal/service"
	"hospital_queue/internal/storage"
	"hospital_queue/internal/store"
	"hospital_queue/internal/tasks"
	"hospital_queue/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title Электронная очередь для поликлиники
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Ошибка получения .env")
		}
	}

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(&models.Queue{}, &models.Patient{}, &models.PatientDevice{}); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	storage.InitRedis()

	tasks.InitScheduler()

	go ws.HubInstance.Run()

	repo := store.NewRepository(storage.DB)

	// Без FCM-ключа push-уведомления уходят в лог.
	var push notify.PushChannel
	if serverKey := os.Getenv("FCM_SERVER_KEY"); serverKey != "" {
		push = notify.NewFCMChannel(serverKey)
	} else {
		log.Println("FCM_SERVER_KEY не задан, push-уведомления пишутся в лог")
		push = notify.NewLogChannel()
	}

	dispatcher := notify.NewDispatcher(ws.HubInstance, push, repo)
	svc := service.NewQueueService(repo, dispatcher)
	handlers.Init(svc, dispatcher)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	queues := r.Group("/api/queues")
	{
		queues.GET("", handlers.ListQueuesHandler)
		queues.POST("", handlers.CreateQueueHandler)
		queues.DELETE("/:id", handlers.DeleteQueueHandler)
		queues.GET("/:id/details", handlers.GetQueueDetailsHandler)
		queues.POST("/:id/call-next", handlers.CallNextHandler)
		queues.GET("/:id/ws", ws.QueueWebSocketHandler)
	}

	patients := r.Group("/api/patients")
	{
		patients.POST("/register", handlers.RegisterPatientHandler)
		patients.GET("/:id", handlers.GetPatientHandler)
		patients.PUT("/:id/status", handlers.UpdatePatientStatusHandler)
		patients.PUT("/:id/position", handlers.ReassignPositionHandler)
		patients.GET("/:id/devices", handlers.ListPatientDevicesHandler)
		patients.DELETE("/:id/devices", handlers.DeleteAllPatientDevicesHandler)
		patients.GET("/:id/ws", ws.PatientWebSocketHandler)
	}

	devices := r.Group("/api/devices")
	{
		devices.POST("", handlers.RegisterDeviceHandler)
		devices.DELETE("/:id", handlers.DeleteDeviceHandler)
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Ошибка запуска сервера...", err.Error())
	}
}
