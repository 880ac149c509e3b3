// Package server - тонкая HTTP-обёртка над программным API слияния:
// анализ и слияние запускаются как асинхронные задачи, статус и результат
// которых опрашиваются по идентификатору.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"chatmerge/internal/pkg/config"
	"chatmerge/internal/server/usecase"
)

// MergeProcessor определяет интерфейс для сценариев, которые выполняет сервер.
type MergeProcessor interface {
	ListDatasets(ctx context.Context, dbPath string) ([]usecase.DatasetView, error)
	Analyze(ctx context.Context, req usecase.AnalyzeRequest) (*usecase.Result, error)
	Merge(ctx context.Context, req usecase.MergeRequest) (*usecase.Result, error)
}

// Server представляет HTTP-сервер
type Server struct {
	HTTPServer *http.Server
	cfg        *config.Config
	taskStore  *TaskStore
	processor  MergeProcessor
	cancelBg   context.CancelFunc
}

// New создает новый экземпляр Server
func New(cfg *config.Config, processor MergeProcessor, taskStore *TaskStore) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		taskStore: taskStore,
		processor: processor,
	}

	chiRouter := chi.NewRouter()

	// Промежуточное ПО
	chiRouter.Use(middleware.Logger)
	chiRouter.Use(middleware.Recoverer)

	// Конечная точка для проверки работоспособности
	chiRouter.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
		})
	})

	// Маршруты API
	chiRouter.Route("/api/v1", func(r chi.Router) {
		// Конечная точка для перечисления датасетов базы (синхронная)
		r.Get("/datasets", func(w http.ResponseWriter, r *http.Request) {
			dbPath := r.URL.Query().Get("db")
			if dbPath == "" {
				http.Error(w, "параметр db обязателен", http.StatusBadRequest)
				return
			}
			listed, err := s.processor.ListDatasets(r.Context(), dbPath)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"datasets": listed})
		})

		// Конечная точка для запуска анализа двух датасетов
		r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
			var req usecase.AnalyzeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
				return
			}
			s.startTask(w, func(ctx context.Context) (*usecase.Result, error) {
				return s.processor.Analyze(ctx, req)
			})
		})

		// Конечная точка для запуска слияния
		r.Post("/merge", func(w http.ResponseWriter, r *http.Request) {
			var req usecase.MergeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Не удалось декодировать тело запроса", http.StatusBadRequest)
				return
			}
			if req.TargetDB == "" {
				http.Error(w, "target_db обязателен", http.StatusBadRequest)
				return
			}
			s.startTask(w, func(ctx context.Context) (*usecase.Result, error) {
				return s.processor.Merge(ctx, req)
			})
		})

		// Конечная точка для проверки статуса задачи
		r.Get("/tasks/{taskID}", func(w http.ResponseWriter, r *http.Request) {
			taskID := chi.URLParam(r, "taskID")

			task, err := taskStore.GetTask(taskID)
			if err != nil {
				http.Error(w, "Задача не найдена", http.StatusNotFound)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"task_id":       task.ID,
				"status":        task.Status,
				"error_message": task.ErrorMessage,
			})
		})

		// Конечная точка для получения результата завершённой задачи
		r.Get("/tasks/{taskID}/result", func(w http.ResponseWriter, r *http.Request) {
			taskID := chi.URLParam(r, "taskID")

			task, err := taskStore.GetTask(taskID)
			if err != nil {
				http.Error(w, "Задача не найдена", http.StatusNotFound)
				return
			}
			if task.Status != TaskStatusCompleted {
				http.Error(w, "Задача не завершена", http.StatusBadRequest)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(task.Result)
		})
	})

	s.HTTPServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      chiRouter,
		ReadTimeout:  config.DefaultReadTimeout,
		WriteTimeout: config.DefaultWriteTimeout,
		IdleTimeout:  config.DefaultIdleTimeout,
	}

	// Тикер для очистки просроченных задач живёт до Shutdown.
	bgCtx, cancel := context.WithCancel(context.Background())
	s.cancelBg = cancel
	s.taskStore.StartCleanupTicker(bgCtx, config.DefaultCleanupInterval)

	return s, nil
}

// startTask создает задачу, запускает fn в горутине и сразу возвращает
// идентификатор задачи клиенту.
func (s *Server) startTask(w http.ResponseWriter, fn func(ctx context.Context) (*usecase.Result, error)) {
	taskID := uuid.NewString()
	s.taskStore.CreateTask(taskID, time.Duration(s.cfg.Storage.TaskTTLHours)*time.Hour)

	go func() {
		s.taskStore.UpdateTaskStatus(taskID, TaskStatusProcessing)

		taskCtx := context.Background()
		if s.cfg.Merge.TotalTimeoutSeconds > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(taskCtx, time.Duration(s.cfg.Merge.TotalTimeoutSeconds)*time.Second)
			defer cancel()
		}

		result, err := fn(taskCtx)
		if err != nil {
			s.taskStore.UpdateTaskError(taskID, err.Error())
			return
		}
		s.taskStore.UpdateTaskResult(taskID, result)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"task_id": taskID})
}

// ListenAndServe запускает HTTP-сервер
func (s *Server) ListenAndServe() error {
	return s.HTTPServer.ListenAndServe()
}

// Shutdown корректно завершает работу HTTP-сервера и его фоновые тикеры
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBg()
	return s.HTTPServer.Shutdown(ctx)
}
