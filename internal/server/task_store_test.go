package server

import (
	"context"
	"testing"
	"time"

	"chatmerge/internal/server/usecase"
)

func TestTaskStoreLifecycle(t *testing.T) {
	ts := NewTaskStore()

	ts.CreateTask("task-1", time.Minute)

	task, err := ts.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask вернул ошибку: %v", err)
	}
	if task.Status != TaskStatusPending {
		t.Errorf("ожидался статус pending, получен %s", task.Status)
	}

	if err := ts.UpdateTaskStatus("task-1", TaskStatusProcessing); err != nil {
		t.Fatalf("UpdateTaskStatus вернул ошибку: %v", err)
	}

	result := &usecase.Result{NewDatasetUUID: "uuid-1"}
	if err := ts.UpdateTaskResult("task-1", result); err != nil {
		t.Fatalf("UpdateTaskResult вернул ошибку: %v", err)
	}

	task, err = ts.GetTask("task-1")
	if err != nil {
		t.Fatalf("GetTask вернул ошибку: %v", err)
	}
	if task.Status != TaskStatusCompleted {
		t.Errorf("ожидался статус completed, получен %s", task.Status)
	}
	if task.Result == nil || task.Result.NewDatasetUUID != "uuid-1" {
		t.Errorf("результат не сохранён: %+v", task.Result)
	}
}

func TestTaskStoreError(t *testing.T) {
	ts := NewTaskStore()
	ts.CreateTask("task-1", time.Minute)

	if err := ts.UpdateTaskError("task-1", "boom"); err != nil {
		t.Fatalf("UpdateTaskError вернул ошибку: %v", err)
	}

	task, _ := ts.GetTask("task-1")
	if task.Status != TaskStatusFailed {
		t.Errorf("ожидался статус failed, получен %s", task.Status)
	}
	if task.ErrorMessage != "boom" {
		t.Errorf("ожидалось сообщение boom, получено %s", task.ErrorMessage)
	}
}

func TestTaskStoreUnknownTask(t *testing.T) {
	ts := NewTaskStore()

	if _, err := ts.GetTask("missing"); err == nil {
		t.Error("ожидалась ошибка для несуществующей задачи")
	}
	if err := ts.UpdateTaskStatus("missing", TaskStatusProcessing); err == nil {
		t.Error("ожидалась ошибка для несуществующей задачи")
	}
}

func TestTaskStoreCleanupExpired(t *testing.T) {
	ts := NewTaskStore()
	ts.CreateTask("expired", -1*time.Minute) // expired
	ts.CreateTask("valid", 1*time.Minute)    // valid

	ts.CleanupExpired()

	if _, err := ts.GetTask("expired"); err == nil {
		t.Error("просроченная задача должна быть удалена")
	}
	if _, err := ts.GetTask("valid"); err != nil {
		t.Error("живая задача не должна быть удалена")
	}
}

func TestTaskStoreCleanupTickerRemovesExpired(t *testing.T) {
	ts := NewTaskStore()
	ctx, cancel := context.WithCancel(context.Background())
	ts.StartCleanupTicker(ctx, 10*time.Millisecond)

	ts.CreateTask("expired", -1*time.Minute)
	time.Sleep(50 * time.Millisecond) // Wait for ticker to run

	if _, err := ts.GetTask("expired"); err == nil {
		t.Error("тикер должен был удалить просроченную задачу")
	}

	cancel()
}
